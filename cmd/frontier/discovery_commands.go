package main

import (
	"bufio"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"frontier/internal/discovery"
)

func newSessionCommand(ctx *commandContext) *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Manage this node's discovery session",
	}
	sessionCmd.AddCommand(newSessionBeginCommand(ctx))
	sessionCmd.AddCommand(newSessionShowCommand(ctx))
	return sessionCmd
}

func newSessionBeginCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "begin <source>...",
		Short: "Begin or resume a discovery session over the given sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withNode(cmd, func(s *session) error {
				sess, err := s.node.BeginSession(cmd.Context(), args)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				verb := "Started"
				if sess.Resumed {
					verb = "Resumed"
				}
				fmt.Fprintf(out, "%s session %s for node %d\n", verb, sess.ID, sess.NodeID)
				fmt.Fprintf(out, "Fingerprint: %s\n", sess.Fingerprint)
				fmt.Fprintf(out, "Sources: %d, discovered items: %d\n", len(sess.Sources), len(sess.Items))

				assigned := s.node.AssignedSources(sess.Sources)
				if len(assigned) == 0 {
					fmt.Fprintf(out, "No sources assigned to node %d of %d\n", s.node.ID(), s.node.TotalNodes())
					return nil
				}
				fmt.Fprintf(out, "Assigned to node %d of %d (%d):\n", s.node.ID(), s.node.TotalNodes(), len(assigned))
				for _, source := range assigned {
					fmt.Fprintf(out, "  %s\n", source)
				}
				return nil
			})
		},
	}
}

func newSessionShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "List the session's discovered items with their status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withNode(cmd, func(s *session) error {
				entries, err := s.node.Items(cmd.Context())
				if err != nil {
					return noSessionHint(err)
				}
				if jsonOutput {
					return writeJSON(cmd, entries)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, "Session has no discovered items")
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					owner := ""
					if e.OwnerNode > 0 {
						owner = strconv.Itoa(e.OwnerNode)
					}
					rows = append(rows, []string{strconv.Itoa(e.Position), e.Identifier, string(e.Status), owner, e.Source})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"#", "Identifier", "Status", "Owner", "Source"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var (
		source    string
		title     string
		attrs     map[string]string
		fromStdin bool
		register  bool
	)
	cmd := &cobra.Command{
		Use:   "ingest [identifier...]",
		Short: "Record discovered identifiers",
		RunE: func(cmd *cobra.Command, args []string) error {
			identifiers := append([]string(nil), args...)
			if fromStdin {
				scanner := bufio.NewScanner(cmd.InOrStdin())
				for scanner.Scan() {
					if line := strings.TrimSpace(scanner.Text()); line != "" {
						identifiers = append(identifiers, line)
					}
				}
				if err := scanner.Err(); err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
			}
			if len(identifiers) == 0 {
				return errors.New("no identifiers given (pass them as arguments or use --stdin)")
			}

			return ctx.withNode(cmd, func(s *session) error {
				meta := discovery.Metadata{Source: source, Title: title, Attributes: attrs}
				limit := s.cfg.Discovery.MaxItemsPerSource
				out := cmd.OutOrStdout()
				added, known := 0, 0
				for _, id := range identifiers {
					if !register && source != "" && limit > 0 {
						count, err := s.node.SourceCount(cmd.Context(), source)
						if err != nil {
							return err
						}
						if count >= limit {
							fmt.Fprintf(out, "Source %s reached its limit of %d items\n", source, limit)
							break
						}
					}

					var (
						isNew bool
						err   error
					)
					if register {
						isNew, err = s.node.Register(cmd.Context(), id, meta)
					} else {
						isNew, err = s.node.Ingest(cmd.Context(), id, meta)
					}
					if err != nil {
						return noSessionHint(err)
					}
					if isNew {
						added++
						fmt.Fprintf(out, "new    %s\n", id)
					} else {
						known++
						fmt.Fprintf(out, "known  %s\n", id)
					}
				}
				fmt.Fprintf(out, "%d new, %d already known\n", added, known)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Source the identifiers were discovered under")
	cmd.Flags().StringVar(&title, "title", "", "Title recorded with each identifier")
	cmd.Flags().StringToStringVar(&attrs, "attr", nil, "Extra attributes as key=value")
	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read identifiers from stdin, one per line")
	cmd.Flags().BoolVar(&register, "register", false, "Add to the frontier without a discovery session")
	return cmd
}

func noSessionHint(err error) error {
	if errors.Is(err, discovery.ErrNoSession) {
		return fmt.Errorf("%w: run `frontier session begin <source>...` first", err)
	}
	return err
}
