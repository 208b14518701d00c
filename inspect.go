package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/arkantrust/payment-intents/models"
	"github.com/arkantrust/payment-intents/store"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Read the database offline",
	Long: `Read the database file directly. BoltDB allows a single process to open
the file, so stop the server first or inspect a copy.`,
}

var inspectIntentsCmd = &cobra.Command{
	Use:   "intents",
	Short: "List a merchant's payment intents, newest first",
	Args:  cobra.NoArgs,
	RunE:  runInspectIntents,
}

var inspectEventsCmd = &cobra.Command{
	Use:   "events <intent-id>",
	Short: "Print an intent and its event timeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspectEvents,
}

var inspectAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Print audit entries, newest first",
	Args:  cobra.NoArgs,
	RunE:  runInspectAudit,
}

func init() {
	inspectCmd.AddCommand(inspectIntentsCmd)
	inspectCmd.AddCommand(inspectEventsCmd)
	inspectCmd.AddCommand(inspectAuditCmd)

	inspectIntentsCmd.Flags().String("merchant", "", "merchant id (required)")
	inspectIntentsCmd.Flags().String("status", "", "only intents in this status")
	for _, c := range []*cobra.Command{inspectIntentsCmd, inspectAuditCmd} {
		c.Flags().Int("page", 0, "zero-based page")
		c.Flags().Int("size", 50, "page size")
	}
}

// openStore opens the configured database for reading.
func openStore() (*store.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	s, err := store.Open(cfg.Database.Path, store.Options{Timeout: cfg.Database.OpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
	}
	return s, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runInspectIntents(cmd *cobra.Command, args []string) error {
	merchant, _ := cmd.Flags().GetString("merchant")
	if merchant == "" {
		return errors.New("--merchant is required")
	}
	status, _ := cmd.Flags().GetString("status")
	if status != "" && !models.Status(status).Valid() {
		return fmt.Errorf("unknown status %q", status)
	}
	page, _ := cmd.Flags().GetInt("page")
	size, _ := cmd.Flags().GetInt("size")

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	var (
		items []models.PaymentIntent
		total int
	)
	err = s.View(func(tx *store.Tx) error {
		items, total, err = tx.ListIntents(store.IntentFilter{
			Merchant: merchant,
			Status:   models.Status(status),
			Page:     page,
			Size:     size,
		})
		return err
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]any{"content": items, "totalElements": total})
}

func runInspectEvents(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	var (
		intent *models.PaymentIntent
		events []models.PaymentEvent
		hooks  []models.WebhookDelivery
	)
	err = s.View(func(tx *store.Tx) error {
		if intent, err = tx.Intent(args[0]); err != nil {
			return err
		}
		if events, err = tx.Events(args[0]); err != nil {
			return err
		}
		hooks, err = tx.WebhookDeliveries(args[0])
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("payment intent %s not found", args[0])
	}
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]any{
		"intent":     intent,
		"events":     events,
		"deliveries": hooks,
	})
}

func runInspectAudit(cmd *cobra.Command, args []string) error {
	page, _ := cmd.Flags().GetInt("page")
	size, _ := cmd.Flags().GetInt("size")

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	var (
		entries []models.AuditEntry
		total   int
	)
	err = s.View(func(tx *store.Tx) error {
		entries, total, err = tx.Audit(page, size)
		return err
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), map[string]any{"content": entries, "totalElements": total})
}
