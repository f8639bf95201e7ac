package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/aipo/registry"
)

var menuActions = map[string]string{
	"1": registry.StageSnapshot,
	"2": registry.StageCanonical,
	"3": registry.StageDetails,
}

// runMenu asks for a locale (unless --locale was given) and a stage, then
// runs it.
func (a *app) runMenu(cmd *cobra.Command, _ []string) error {
	choice := a.locale
	if !cmd.Flags().Changed("locale") {
		fmt.Fprint(a.out, "Locale (en, ru, hy, all) [en]: ")
		line, err := a.readLine()
		if err != nil {
			return fmt.Errorf("read locale: %w", err)
		}
		choice = line
	}
	locales, err := registry.Locales(choice)
	if err != nil {
		return err
	}

	fmt.Fprint(a.out, "1) snapshot   sweep classification codes\n"+
		"2) canonical  reconcile into a dense sequence\n"+
		"3) details    extract record pages\n"+
		"Action: ")
	line, err := a.readLine()
	if err != nil {
		return fmt.Errorf("read action: %w", err)
	}
	stage, ok := menuActions[line]
	if !ok {
		return fmt.Errorf("unknown action %q, choose 1, 2 or 3", line)
	}
	return a.runStage(cmd.Context(), stage, locales)
}

// confirm prints question and reads a y/N answer. With --yes every
// question is accepted without reading.
func (a *app) confirm(question string) bool {
	fmt.Fprintf(a.out, "%s [y/N] ", question)
	if a.yes {
		fmt.Fprintln(a.out, "y")
		return true
	}
	line, err := a.readLine()
	if err != nil {
		fmt.Fprintln(a.out)
		return false
	}
	switch strings.ToLower(line) {
	case "y", "yes":
		return true
	}
	return false
}

// readLine returns the next trimmed input line. A last line without a
// newline is still returned; io.EOF only when nothing is left.
func (a *app) readLine() (string, error) {
	line, err := a.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
