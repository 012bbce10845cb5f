package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var submitCmd = &cobra.Command{
	Use:   "submit <sequence|->",
	Short: "Submit a protein sequence and run the search locally",
	Long: `Submit a protein sequence and run the search in this process.

The job is written to the configured job directories, so it is visible to a
running 'protsearch serve' and to 'protsearch jobs'. Pass "-" to read the
sequence from stdin; FASTA header lines starting with '>' are skipped.

Without --wait the job id is printed as soon as the query is stored and the
command exits once the search finishes. With --wait the parsed result is
printed instead; --timeout bounds the wait but not the search.`,
	Args: cobra.ExactArgs(1),
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().Bool("wait", false, "Wait for the job to finish and print its result")
	submitCmd.Flags().Duration("timeout", 0, "Give up waiting after this duration (0 = no limit)")
	addFormatFlags(submitCmd)
}

func readSequenceArg(arg string, stdin io.Reader) (string, error) {
	if arg != "-" {
		return arg, nil
	}
	var b strings.Builder
	scanner := bufio.NewScanner(stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ">") {
			continue
		}
		b.WriteString(line)
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read sequence from stdin: %w", err)
	}
	return b.String(), nil
}

func runSubmit(cmd *cobra.Command, args []string) error {
	seq, err := readSequenceArg(args[0], cmd.InOrStdin())
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	svc, err := newServices(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.executor.Wait()

	out := cmd.OutOrStdout()
	format := formatFromFlags(cmd)
	wait, _ := cmd.Flags().GetBool("wait")

	if !wait {
		id, err := svc.executor.Submit(commandContext(cmd), seq)
		if err != nil {
			return err
		}
		if done, err := writeStructured(out, format, map[string]string{"job_id": id.String()}); done || err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, id)
		return nil
	}

	ctx := commandContext(cmd)
	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	started := time.Now()
	res, err := svc.executor.SubmitAndWait(ctx, seq)
	if err != nil {
		return err
	}
	logger.Debug("Job finished", zap.String("job_id", res.JobID.String()), zap.Duration("elapsed", time.Since(started)))
	return printJobResult(out, format, res)
}
