// Conveyor CLI — инструмент командной строки для управления runs,
// секретами и иерархией organization → product → repository.
//
// Использование:
//
//	conveyor [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	run     Управление runs анализа
//	secret  Управление секретами
//	admin   Управление иерархией и инфраструктурными сервисами
//
// CLI работает напрямую с хранилищами и транспортом; подключение
// настраивается теми же переменными окружения, что и у сервисов.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "conveyor",
		Short:         "Conveyor CLI — software composition analysis runs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func(ctx context.Context) (*cli.Client, error) { return cli.NewClient(ctx) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRunCmd(clientFn, outputFn),
		cli.NewSecretCmd(clientFn, outputFn),
		cli.NewAdminCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
