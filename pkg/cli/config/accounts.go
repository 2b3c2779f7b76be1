package config

import (
	"log/slog"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/secmon-lab/orthrus/pkg/domain/model"
	"github.com/secmon-lab/orthrus/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

// AccountConfig represents one backend account entry
type AccountConfig struct {
	Key     string `toml:"key"`
	RoleRef string `toml:"role_ref"`
	Name    string `toml:"name"`
}

// Validate checks if the AccountConfig is valid
func (a *AccountConfig) Validate() error {
	account := model.Account{
		Key:     types.AccountKey(a.Key),
		RoleRef: a.RoleRef,
		Name:    a.Name,
	}
	return account.Validate()
}

// AccountsFile represents the accounts configuration document
type AccountsFile struct {
	Accounts []AccountConfig `toml:"account"`
}

// Validate checks if the AccountsFile is valid
func (f *AccountsFile) Validate() error {
	keys := make(map[string]bool)
	for _, account := range f.Accounts {
		if err := account.Validate(); err != nil {
			return goerr.Wrap(err, "invalid account")
		}
		if keys[account.Key] {
			return goerr.New("duplicate account key", goerr.V("key", account.Key))
		}
		keys[account.Key] = true
	}
	return nil
}

// ToAccountSet converts the file entries into the domain account set
func (f *AccountsFile) ToAccountSet() *model.AccountSet {
	set := model.NewAccountSet()
	for _, account := range f.Accounts {
		set.Register(&model.Account{
			Key:     types.AccountKey(account.Key),
			RoleRef: account.RoleRef,
			Name:    account.Name,
		})
	}
	return set
}

// LoadAccounts loads the account roster from a TOML file
func LoadAccounts(path string) (*AccountsFile, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read accounts file", goerr.V("path", path))
	}

	var file AccountsFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, goerr.Wrap(err, "failed to parse accounts TOML", goerr.V("path", path))
	}

	if err := file.Validate(); err != nil {
		return nil, goerr.Wrap(err, "accounts validation failed", goerr.V("path", path))
	}

	return &file, nil
}

// Accounts holds CLI flags for the backend account roster
type Accounts struct {
	path string
}

// Flags returns CLI flags for accounts configuration
func (x *Accounts) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "accounts",
			Usage:       "Path to the backend accounts TOML file",
			Category:    "Sync",
			Sources:     cli.EnvVars("ORTHRUS_ACCOUNTS"),
			Destination: &x.path,
		},
	}
}

// Path returns the accounts file path
func (x *Accounts) Path() string {
	return x.path
}

// IsConfigured checks if an accounts file is set
func (x *Accounts) IsConfigured() bool {
	return x.path != ""
}

// Configure loads the account roster. An empty set is returned when no
// file is configured so push-only deployments work without one.
func (x *Accounts) Configure() (*model.AccountSet, error) {
	if x.path == "" {
		return model.NewAccountSet(), nil
	}

	file, err := LoadAccounts(x.path)
	if err != nil {
		return nil, err
	}

	return file.ToAccountSet(), nil
}

func (x Accounts) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("path", x.path),
	)
}
