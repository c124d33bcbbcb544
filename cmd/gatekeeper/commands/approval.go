package commands

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MEKXH/gatekeeper/internal/approval"
	"github.com/MEKXH/gatekeeper/internal/engine"
)

func NewApprovalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approval",
		Short: "List, approve and deny pending actions on a running gateway",
	}
	addGatewayFlags(cmd)

	cmd.AddCommand(
		newApprovalListCmd(),
		newApprovalApproveCmd(),
		newApprovalDenyCmd(),
	)

	return cmd
}

func newApprovalListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending actions",
		RunE:  runApprovalList,
	}
}

func newApprovalApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve and execute a pending action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApprovalDecision(cmd, args[0], engine.Approve)
		},
	}
}

func newApprovalDenyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deny <id>",
		Short: "Deny a pending action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApprovalDecision(cmd, args[0], engine.Deny)
		},
	}
}

func runApprovalList(cmd *cobra.Command, args []string) error {
	client, err := newGatewayClient(cmd)
	if err != nil {
		return err
	}

	var resp struct {
		Pending []approval.PendingAction `json:"pending"`
	}
	if err := client.do(commandContext(cmd), http.MethodGet, "/pending", nil, &resp); err != nil {
		return err
	}
	if len(resp.Pending) == 0 {
		fmt.Println("No pending actions.")
		return nil
	}

	cols := []column{
		{title: "ID", width: 10},
		{title: "TOOL", width: 14},
		{title: "RISK", width: 10},
		{title: "EFFECT", width: 40},
		{title: "CREATED", width: 20},
	}
	rows := make([][]cell, 0, len(resp.Pending))
	for _, action := range resp.Pending {
		rows = append(rows, []cell{
			{text: action.ID, color: mutedColor},
			{text: action.Tool},
			{text: string(action.Risk), color: riskColor(string(action.Risk))},
			{text: action.Effect},
			{text: action.CreatedAt.Local().Format(time.DateTime)},
		})
	}
	printTable(fmt.Sprintf("Pending Actions (%d)", len(resp.Pending)), cols, rows)
	return nil
}

func runApprovalDecision(cmd *cobra.Command, id string, verdict engine.Verdict) error {
	id = strings.TrimSpace(id)
	client, err := newGatewayClient(cmd)
	if err != nil {
		return err
	}

	action := "approve"
	if verdict == engine.Deny {
		action = "deny"
	}
	var resp struct {
		Outcome engine.Outcome `json:"outcome"`
		Error   string         `json:"error"`
	}
	path := "/pending/" + url.PathEscape(id) + "/" + action
	if err := client.do(commandContext(cmd), http.MethodPost, path, nil, &resp); err != nil {
		return err
	}

	printOutcome(id, resp.Outcome)
	if resp.Error != "" {
		return fmt.Errorf("%s", resp.Error)
	}
	return nil
}

func printOutcome(id string, o engine.Outcome) {
	fmt.Printf("Action %s: %s\n", id, o.Kind)
	if o.Message != "" {
		fmt.Printf("  %s\n", o.Message)
	}
	if o.Detail != "" {
		fmt.Printf("  detail: %s\n", o.Detail)
	}
	if o.Result != "" {
		fmt.Printf("  result: %s\n", truncate(o.Result, 200))
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
