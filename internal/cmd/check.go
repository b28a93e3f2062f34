package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"LogFormatPump/internal/format"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var paths []string
	c := &cobra.Command{
		Use:   "check",
		Short: "Проверить описания форматов",
		Long: `Собирает встроенные форматы и форматы из --formats, проверяет образцы строк
и печатает порядок проверки форматов при определении.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lg, err := opts.cliLogger()
			if err != nil {
				return err
			}
			defer lg.Sync()

			defs, err := loadDefinitions(paths)
			if err != nil {
				return err
			}
			reg, err := format.Build(defs, format.Options{Logger: lg})
			if err != nil {
				errs := multierr.Errors(err)
				for _, e := range errs {
					fmt.Fprintln(cmd.ErrOrStderr(), e)
				}
				return fmt.Errorf("%d format error(s)", len(errs))
			}

			out := cmd.OutOrStdout()
			for i, d := range reg.Order() {
				fmt.Fprintf(out, "%2d. %s (%s)\n", i+1, d.Name, d.Type)
			}
			collisions := reg.Collisions()
			names := make([]string, 0, len(collisions))
			for name := range collisions {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintf(out, "%s: шаблоны совпадают с образцами %v\n", name, collisions[name])
			}
			return nil
		},
	}
	c.Flags().StringSliceVarP(&paths, "formats", "f", nil, "файлы и каталоги с описаниями форматов")
	return c
}
