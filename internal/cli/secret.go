package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewSecretCmd создаёт группу команд для управления секретами.
func NewSecretCmd(clientFn ClientFunc, outputFn OutputFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secret declarations",
	}

	cmd.AddCommand(newSecretCreateCmd(clientFn, outputFn))

	return cmd
}

func newSecretCreateCmd(clientFn ClientFunc, outputFn OutputFunc) *cobra.Command {
	var scope string
	var scopeID string
	var value string
	var fromEnv string
	var description string

	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a secret at a hierarchy level",
		Long: `Create a secret at a hierarchy level.

The value is written to the secret store under the conventional path
{scope}_{scopeId}_{name}; the declaration references it by that path.
Pass the value with --value or name an environment variable with
--from-env to keep it out of the shell history.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()
			out := outputFn()

			secretValue := value
			if fromEnv != "" {
				v, ok := os.LookupEnv(fromEnv)
				if !ok {
					return fmt.Errorf("environment variable %s is not set", fromEnv)
				}
				secretValue = v
			}
			if secretValue == "" {
				return fmt.Errorf("secret value is required, pass --value or --from-env")
			}

			secret, err := client.CreateSecret(cmd.Context(), CreateSecretParams{
				Scope:       scope,
				ScopeID:     scopeID,
				Name:        args[0],
				Value:       secretValue,
				Description: description,
			})
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Secret created: %s", secret.Name))
			out.Print(
				[]string{"ID", "NAME", "SCOPE", "PATH"},
				[][]string{{secret.ID.String(), secret.Name, string(secret.Scope()), secret.Path}},
				secret,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&scope, "scope", "", "Hierarchy level: organization, product or repository")
	cmd.Flags().StringVar(&scopeID, "scope-id", "", "ID of the organization, product or repository")
	cmd.Flags().StringVar(&value, "value", "", "Secret value")
	cmd.Flags().StringVar(&fromEnv, "from-env", "", "Read the value from this environment variable")
	cmd.Flags().StringVar(&description, "description", "", "Secret description")
	_ = cmd.MarkFlagRequired("scope")
	_ = cmd.MarkFlagRequired("scope-id")

	return cmd
}
