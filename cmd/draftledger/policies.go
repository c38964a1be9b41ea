// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"draftledger/internal/policy"
)

func runPolicies(cmd *cobra.Command, _ []string) error {
	lib, err := policy.LoadLibrary(appConfig.PolicyFile)
	if err != nil {
		return err
	}
	return printPolicies(cmd.OutOrStdout(), lib.List(), policiesJSON)
}

// printPolicies writes the library as JSON or as an aligned table with the
// policy text cut to one line.
func printPolicies(w io.Writer, policies []policy.Policy, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(policies)
	}
	if len(policies) == 0 {
		_, err := fmt.Fprintln(w, "no policies loaded (set POLICY_FILE)")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTEXT")
	for _, p := range policies {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, p.Name, oneLine(p.Text, 60))
	}
	return tw.Flush()
}

// oneLine collapses whitespace and truncates s to limit runes.
func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
