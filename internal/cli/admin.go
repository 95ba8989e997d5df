package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewAdminCmd создаёт группу административных команд: иерархия и
// инфраструктурные сервисы.
func NewAdminCmd(clientFn ClientFunc, outputFn OutputFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage the hierarchy and infrastructure services",
	}

	cmd.AddCommand(
		newOrgAddCmd(clientFn, outputFn),
		newProductAddCmd(clientFn, outputFn),
		newRepoAddCmd(clientFn, outputFn),
		newServiceAddCmd(clientFn, outputFn),
	)

	return cmd
}

func newOrgAddCmd(clientFn ClientFunc, outputFn OutputFunc) *cobra.Command {
	var description string

	cmd := &cobra.Command{
		Use:   "org NAME",
		Short: "Add an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()
			out := outputFn()

			org, err := client.AddOrganization(cmd.Context(), args[0], description)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Organization created: %s", org.ID))
			out.Print(
				[]string{"ID", "NAME", "DESCRIPTION"},
				[][]string{{org.ID.String(), org.Name, org.Description}},
				org,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "Organization description")

	return cmd
}

func newProductAddCmd(clientFn ClientFunc, outputFn OutputFunc) *cobra.Command {
	var organizationID string
	var description string

	cmd := &cobra.Command{
		Use:   "product NAME",
		Short: "Add a product to an organization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()
			out := outputFn()

			product, err := client.AddProduct(cmd.Context(), organizationID, args[0], description)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Product created: %s", product.ID))
			out.Print(
				[]string{"ID", "ORGANIZATION", "NAME", "DESCRIPTION"},
				[][]string{{product.ID.String(), product.OrganizationID.String(), product.Name, product.Description}},
				product,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&organizationID, "org-id", "", "Owning organization ID")
	cmd.Flags().StringVar(&description, "description", "", "Product description")
	_ = cmd.MarkFlagRequired("org-id")

	return cmd
}

func newRepoAddCmd(clientFn ClientFunc, outputFn OutputFunc) *cobra.Command {
	var productID string

	cmd := &cobra.Command{
		Use:   "repo URL",
		Short: "Add a repository to a product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()
			out := outputFn()

			repository, err := client.AddRepository(cmd.Context(), productID, args[0])
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Repository created: %s", repository.ID))
			out.Print(
				[]string{"ID", "PRODUCT", "URL"},
				[][]string{{repository.ID.String(), repository.ProductID.String(), repository.URL}},
				repository,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&productID, "product-id", "", "Owning product ID")
	_ = cmd.MarkFlagRequired("product-id")

	return cmd
}

func newServiceAddCmd(clientFn ClientFunc, outputFn OutputFunc) *cobra.Command {
	var params AddServiceParams

	cmd := &cobra.Command{
		Use:   "service NAME",
		Short: "Declare an infrastructure service at a hierarchy level",
		Long: `Declare an infrastructure service at a hierarchy level.

Credential secrets are referenced by name and must already be declared
at the same level (see "secret create").`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := clientFn(cmd.Context())
			if err != nil {
				return err
			}
			defer client.Close()
			out := outputFn()

			params.Name = args[0]
			svc, err := client.AddService(cmd.Context(), params)
			if err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Service created: %s", svc.Name))
			out.Print(
				[]string{"NAME", "URL", "USERNAME_SECRET", "PASSWORD_SECRET"},
				[][]string{{svc.Name, svc.URL, svc.UsernameSecret.Name, svc.PasswordSecret.Name}},
				svc,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&params.Scope, "scope", "", "Hierarchy level: organization, product or repository")
	cmd.Flags().StringVar(&params.ScopeID, "scope-id", "", "ID of the organization, product or repository")
	cmd.Flags().StringVar(&params.URL, "url", "", "Service URL")
	cmd.Flags().StringVar(&params.Description, "description", "", "Service description")
	cmd.Flags().StringVar(&params.UsernameSecret, "username-secret", "", "Name of the username secret")
	cmd.Flags().StringVar(&params.PasswordSecret, "password-secret", "", "Name of the password secret")
	cmd.Flags().StringSliceVar(&params.CredentialsTypes, "credentials-types", nil, "Credential file kinds: NETRC_FILE, GIT_CREDENTIALS_FILE")
	_ = cmd.MarkFlagRequired("scope")
	_ = cmd.MarkFlagRequired("scope-id")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("username-secret")
	_ = cmd.MarkFlagRequired("password-secret")

	return cmd
}
