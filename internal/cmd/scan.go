package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sourcegraph/conc/iter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"LogFormatPump/internal/command"
	"LogFormatPump/internal/format"
	"LogFormatPump/internal/models"
	"LogFormatPump/internal/watcher"
)

type scanOptions struct {
	formats     []string
	render      bool
	rewrite     bool
	detectLines int
}

// fileScan: результат разбора одного файла.
type fileScan struct {
	path    string
	format  string
	records []models.Record
	err     error
}

func newScanCmd(opts *rootOptions) *cobra.Command {
	so := &scanOptions{}
	c := &cobra.Command{
		Use:   "scan FILE...",
		Short: "Разобрать файлы журналов и напечатать записи",
		Long: `Определяет формат каждого файла, собирает записи и печатает их с уровнем
и номером первой строки. Файлы разбираются параллельно, вывод идёт в порядке аргументов.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lg, err := opts.cliLogger()
			if err != nil {
				return err
			}
			defer lg.Sync()

			defs, err := loadDefinitions(so.formats)
			if err != nil {
				return err
			}
			reg, err := format.Build(defs, format.Options{Logger: lg.Named("format"), DetectLines: so.detectLines})
			if err != nil {
				return fmt.Errorf("build formats: %w", err)
			}
			var exec format.Executor
			if so.rewrite {
				exec = command.NewShell(lg.Named("rewriter"))
			}

			results := iter.Map(args, func(path *string) fileScan {
				return scanFile(cmd.Context(), *path, reg, lg, exec, so.detectLines)
			})
			return printScans(cmd.OutOrStdout(), results, so.render)
		},
	}
	c.Flags().StringSliceVarP(&so.formats, "formats", "f", nil, "файлы и каталоги с описаниями форматов")
	c.Flags().BoolVar(&so.render, "render", false, "печатать отображаемый текст записи вместо исходного")
	c.Flags().BoolVar(&so.rewrite, "rewrite", false, "вызывать rewriter значений")
	c.Flags().IntVar(&so.detectLines, "detect-lines", 15, "сколько строк использовать для определения формата")
	return c
}

func scanFile(ctx context.Context, path string, reg *format.Registry, lg *zap.Logger, exec format.Executor, detectLines int) fileScan {
	res := fileScan{path: path}
	f, err := os.Open(path)
	if err != nil {
		res.err = fmt.Errorf("open %s: %w", path, err)
		return res
	}
	defer f.Close()

	rec := watcher.NewRecorder(ctx, path, reg, lg, func(r models.Record) {
		res.records = append(res.records, r)
	})
	rec.Exec = exec
	if detectLines > 0 {
		rec.DetectLines = detectLines
	}
	if err := feedLines(f, rec); err != nil {
		res.err = fmt.Errorf("read %s: %w", path, err)
		return res
	}
	rec.Flush()
	if d := rec.Format(); d != nil {
		res.format = d.Name
	}
	return res
}

// feedLines передаёт строки r в Recorder вместе со смещениями.
func feedLines(r io.Reader, rec *watcher.Recorder) error {
	br := bufio.NewReader(r)
	var off int64
	for {
		line, err := br.ReadString('\n')
		if len(line) > 0 {
			data := strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
			rec.Push(format.LineInfo{Offset: off, Data: data})
			off += int64(len(line))
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func printScans(w io.Writer, results []fileScan, render bool) error {
	failed := 0
	for _, res := range results {
		if res.err != nil {
			fmt.Fprintf(w, "%s: %v\n", res.path, res.err)
			failed++
			continue
		}
		if res.format == "" {
			fmt.Fprintf(w, "%s: формат не определён\n", res.path)
			continue
		}
		fmt.Fprintf(w, "%s: %s, записей %d\n", res.path, res.format, len(res.records))
		for _, r := range res.records {
			text := r.Raw
			if render {
				text = strings.TrimSuffix(r.Message, "\n")
			}
			fmt.Fprintf(w, "%s:%d [%s] %s\n", res.path, r.LineNumber, r.Level.Base(), text)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d file(s) could not be read", failed)
	}
	return nil
}
