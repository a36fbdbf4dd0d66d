package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"inapppay/internal/config"
	"inapppay/internal/models"
	"inapppay/internal/verification"
	"inapppay/pkg/logging"
)

type verifyOutput struct {
	Outcome     models.Outcome  `json:"outcome"`
	Status      int             `json:"status"`
	StatusText  string          `json:"status_text,omitempty"`
	Environment string          `json:"environment"`
	Attempts    int             `json:"attempts"`
	Response    json.RawMessage `json:"response,omitempty"`
	Error       string          `json:"error,omitempty"`
}

func newVerifyCommand() *cobra.Command {
	var (
		receiptPath string
		password    string
		sandbox     bool
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify one receipt file and print the outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.InitConfig(); err != nil {
				return fmt.Errorf("failed to initialize config: %w", err)
			}
			cfg := config.AppConfig
			if err := logging.InitLogging(cfg.LogLevel, "console"); err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			defer logging.Sync()

			receipt, err := os.ReadFile(receiptPath)
			if err != nil {
				return fmt.Errorf("failed to read receipt: %w", err)
			}
			if password == "" {
				password = cfg.SharedSecret
			}

			res := newVerifier(cfg, nil).Verify(cmd.Context(), verification.Request{
				Receipt:      receipt,
				SharedSecret: password,
				Environment:  models.EnvironmentFor(sandbox),
			})

			out := verifyOutput{
				Outcome:     res.Outcome,
				Status:      res.Status,
				Environment: res.Environment.String(),
				Attempts:    res.Attempts,
			}
			if res.Status > 0 {
				out.StatusText = verification.StatusText(res.Status)
			}
			if res.Err != nil {
				out.Error = res.Err.Error()
			}
			if json.Valid(res.Payload) {
				out.Response = json.RawMessage(res.Payload)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			if res.Outcome != models.OutcomeSuccess {
				return fmt.Errorf("verification %s", res.Outcome)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&receiptPath, "receipt", "", "path to the raw receipt file")
	cmd.Flags().StringVar(&password, "password", "", "shared secret, defaults to SHARED_SECRET")
	cmd.Flags().BoolVar(&sandbox, "sandbox", false, "start with the sandbox endpoint")
	_ = cmd.MarkFlagRequired("receipt")
	return cmd
}
