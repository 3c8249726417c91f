package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pavelanni/examhell/internal/message"
	"github.com/pavelanni/examhell/internal/model"
	"github.com/pavelanni/examhell/internal/store"
)

func parseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parse [file|-]",
		Short: "Split an assistant message into text and QUESTIONS segments",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runParse,
	}
	addLogFlags(cmd)
	return cmd
}

func splitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split [file|-]",
		Short: "Split question text into plain and LaTeX spans",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSplit,
	}
	addLogFlags(cmd)
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export an exam and its questions as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "examhell.db", "SQLite database path")
	f.Int64("exam-id", 0, "Exam to export (required)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("exam-id")
	return cmd
}

func runParse(cmd *cobra.Command, args []string) error {
	setupLogging(viperForCmd(cmd))
	input, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	segments, err := message.ParseMessage(input)
	if err != nil {
		return err
	}
	if segments == nil {
		segments = []message.Segment[model.QuestionBatch]{}
	}
	return writeIndented(cmd.OutOrStdout(), segments)
}

func runSplit(cmd *cobra.Command, args []string) error {
	setupLogging(viperForCmd(cmd))
	input, err := readInput(cmd, args)
	if err != nil {
		return err
	}
	spans := message.SplitQuestion(input)
	if spans == nil {
		spans = []message.Span{}
	}
	return writeIndented(cmd.OutOrStdout(), spans)
}

func runExport(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportExam(v.GetInt64("exam-id"))
	if err != nil {
		return fmt.Errorf("export exam: %w", err)
	}

	outPath := v.GetString("output")
	if outPath == "" || outPath == "-" {
		return writeIndented(cmd.OutOrStdout(), export)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()
	return writeIndented(f, export)
}

// readInput returns the contents of the named file, or of stdin when no
// file or "-" is given.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(data), nil
}

func writeIndented(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)
	return nil
}
