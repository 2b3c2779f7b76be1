package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/orthrus/pkg/cli/config"
	"github.com/urfave/cli/v3"
)

func cmdValidate() *cli.Command {
	var accountsCfg config.Accounts
	var exchangeCfg config.Exchange
	var syncCfg config.Sync

	var flags []cli.Flag
	flags = append(flags, accountsCfg.Flags()...)
	flags = append(flags, exchangeCfg.Flags()...)
	flags = append(flags, syncCfg.Flags()...)

	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate the accounts file and engine configuration",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			pass := color.New(color.FgGreen).SprintFunc()
			fail := color.New(color.FgRed, color.Bold).SprintFunc()

			if !accountsCfg.IsConfigured() {
				return goerr.New("--accounts is required")
			}

			file, err := config.LoadAccounts(accountsCfg.Path())
			if err != nil {
				fmt.Printf("%s accounts file: %s\n", fail("NG"), accountsCfg.Path())
				return goerr.Wrap(err, "accounts validation failed")
			}

			fmt.Printf("%s accounts file: %s\n", pass("OK"), accountsCfg.Path())
			for _, account := range file.Accounts {
				fmt.Printf("  %s %s: %s (%s)\n", pass("OK"), account.Key, account.Name, account.RoleRef)
			}

			if err := syncCfg.Validate(); err != nil {
				fmt.Printf("%s sync tunables\n", fail("NG"))
				return goerr.Wrap(err, "sync configuration validation failed")
			}
			fmt.Printf("%s sync tunables\n", pass("OK"))

			// Parse the signing key when the exchange is configured so a bad
			// key fails here instead of on the first poll cycle.
			if exchangeCfg.IsConfigured() {
				if _, err := exchangeCfg.Configure(); err != nil {
					fmt.Printf("%s exchange signing key\n", fail("NG"))
					return goerr.Wrap(err, "exchange validation failed")
				}
				fmt.Printf("%s exchange signing key\n", pass("OK"))
			}

			fmt.Printf("%d account(s) validated\n", len(file.Accounts))
			return nil
		},
	}
}
