package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/simplesurance/automerger/internal/cfg"
	"github.com/simplesurance/automerger/internal/policy"
)

func newPolicyCmd(args *arguments) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Show, change or validate automerge policies",
	}

	cmd.AddCommand(
		newPolicyShowCmd(args),
		newPolicySetCmd(args),
		newPolicyValidateCmd(args),
	)

	return cmd
}

func parseRepositoryArg(arg string) (owner, repo string, err error) {
	owner, repo, found := strings.Cut(arg, "/")
	if !found || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid repository %q, expecting OWNER/REPOSITORY", arg)
	}

	return owner, repo, nil
}

func mustLoadPolicyStoreCfg(args *arguments) *cfg.PolicyStore {
	config := mustParseCfg(args.ConfigFile)
	exitOnErr(fmt.Sprintf("invalid configuration file: %s", args.ConfigFile), config.PolicyStore.Validate())

	return &config.PolicyStore
}

func newPolicyShowCmd(args *arguments) *cobra.Command {
	return &cobra.Command{
		Use:   "show OWNER/REPOSITORY",
		Short: "Print the effective automerge policy of a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			owner, repo, err := parseRepositoryArg(posArgs[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()

			store, err := openPolicyStore(ctx, mustLoadPolicyStoreCfg(args))
			if err != nil {
				return err
			}
			defer store.Close()

			config, err := store.ConfigForRepo(ctx, owner, repo)
			if err != nil {
				return err
			}

			out, err := yaml.Marshal(config)
			if err != nil {
				return err
			}

			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newPolicySetCmd(args *arguments) *cobra.Command {
	var config policy.Config
	var mergeMethod string

	cmd := &cobra.Command{
		Use:   "set OWNER/REPOSITORY",
		Short: "Store the automerge policy of a repository, requires the sqlite policy store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			owner, repo, err := parseRepositoryArg(posArgs[0])
			if err != nil {
				return err
			}

			storeCfg := mustLoadPolicyStoreCfg(args)
			if storeCfg.Type != cfg.PolicyStoreTypeSQLite {
				return fmt.Errorf("policy_store.type is %q, policies can only be changed in a %q store", storeCfg.Type, cfg.PolicyStoreTypeSQLite)
			}

			config.MergeMethod = policy.MergeMethod(mergeMethod)

			ctx := cmd.Context()

			store, err := policy.OpenSQLiteStore(ctx, storeCfg.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.SetConfigForRepo(ctx, owner, repo, &config); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "policy of %s/%s stored\n", owner, repo)

			return nil
		},
	}

	cmd.Flags().StringArrayVar(&config.AutomergeTargetPatterns, "target-branch", nil, "regular expression of target branches that are automerged, can be repeated")
	cmd.Flags().StringArrayVar(&config.AutomergeFromSourcePatterns, "source-branch", nil, "regular expression of source branches that are automerged, can be repeated")
	cmd.Flags().StringArrayVar(&config.BlockedTargetPatterns, "blocked-branch", nil, "regular expression of target branches that are never automerged, can be repeated")
	cmd.Flags().StringVar(&mergeMethod, "merge-method", string(policy.DefMergeMethod), "merge method: merge, squash or rebase")

	return cmd
}

func newPolicyValidateCmd(args *arguments) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the policies of the configured policy store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			storeCfg := mustLoadPolicyStoreCfg(args)

			store, err := openPolicyStore(cmd.Context(), storeCfg)
			if err != nil {
				return err
			}

			if err := store.Close(); err != nil {
				return errors.Join(errors.New("closing policy store failed"), err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s policy store %s is valid\n", storeCfg.Type, storeCfg.Path)

			return nil
		},
	}
}
