package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/tturner/linknode/internal/config"
	"github.com/tturner/linknode/internal/update"
)

func validateInt(lo, hi int) func(string) error {
	return func(s string) error {
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("must be a number")
		}
		if v < lo || v > hi {
			return fmt.Errorf("must be between %d and %d", lo, hi)
		}
		return nil
	}
}

func buildInitForm(defaults *config.RunConfig) *huh.Form {
	host := defaults.Target.Host
	port := strconv.Itoa(defaults.Target.Port)
	timeout := strconv.Itoa(defaults.Target.TimeoutMs)
	input := defaults.Files.Input
	mitigation := defaults.Files.Mitigation
	start := strconv.Itoa(defaults.Iteration.Start)
	size := strconv.Itoa(defaults.Iteration.Size)
	repeat := strconv.Itoa(defaults.Iteration.Repeat)
	layout := defaults.Encoding.Layout
	strict := defaults.Encoding.Strict
	publish := false
	endpoint := ""
	unitID := "1"
	address := "0"

	targetGroup := huh.NewGroup(
		huh.NewInput().
			Title("Central node host").
			Description("Host name or IPv4 address of the central node engine.").
			Key("host").
			Value(&host),
		huh.NewInput().
			Title("UDP port").
			Key("port").
			Validate(validateInt(1, 65535)).
			Value(&port),
		huh.NewInput().
			Title("Reply timeout (ms)").
			Description("0 waits forever for each reply.").
			Key("timeout_ms").
			Validate(validateInt(0, 3600000)).
			Value(&timeout),
	)

	filesGroup := huh.NewGroup(
		huh.NewInput().
			Title("Input file base").
			Description("Transition files are read from <base>-<index>.txt.").
			Key("input").
			Value(&input),
		huh.NewInput().
			Title("Mitigation file base").
			Description("Expected power classes are read from <base>-<index>.txt.").
			Key("mitigation").
			Value(&mitigation),
		huh.NewInput().
			Title("First index").
			Key("start").
			Validate(validateInt(0, 1<<30)).
			Value(&start),
		huh.NewInput().
			Title("Updates per cycle").
			Key("size").
			Validate(validateInt(1, 1<<30)).
			Value(&size),
		huh.NewInput().
			Title("Cycles").
			Description("0 repeats until interrupted.").
			Key("repeat").
			Validate(validateInt(0, 1<<30)).
			Value(&repeat),
	)

	encodingGroup := huh.NewGroup(
		huh.NewSelect[string]().
			Title("Status buffer layout").
			Key("layout").
			Options(
				huh.NewOption("Per-line (64-byte block per line)", update.LayoutPerLine.String()),
				huh.NewOption("Paired (48-byte header, 24-byte blocks)", update.LayoutPaired.String()),
			).
			Value(&layout),
		huh.NewConfirm().
			Title("Strict input").
			Description("Reject lines of the wrong width or with characters other than 0 and 1.").
			Key("strict").
			Value(&strict),
		huh.NewConfirm().
			Title("Publish cycle status over Modbus TCP?").
			Key("publish").
			Value(&publish),
	)

	statusGroup := huh.NewGroup(
		huh.NewInput().
			Title("Modbus endpoint").
			Description("host:port of the status register server.").
			Key("status_endpoint").
			Value(&endpoint),
		huh.NewInput().
			Title("Unit ID").
			Key("status_unit_id").
			Validate(validateInt(0, 255)).
			Value(&unitID),
		huh.NewInput().
			Title("Base holding register").
			Key("status_address").
			Validate(validateInt(0, 65535)).
			Value(&address),
	).WithHideFunc(func() bool { return !publish })

	return huh.NewForm(targetGroup, filesGroup, encodingGroup, statusGroup)
}

func wizardOptionsFromForm(form *huh.Form) (WizardOptions, error) {
	ints := map[string]int{}
	for _, key := range []string{"port", "timeout_ms", "start", "size", "repeat", "status_unit_id", "status_address"} {
		raw := strings.TrimSpace(form.GetString(key))
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return WizardOptions{}, fmt.Errorf("%s: %w", key, err)
		}
		ints[key] = v
	}

	opts := WizardOptions{
		Host:       form.GetString("host"),
		Port:       ints["port"],
		TimeoutMs:  ints["timeout_ms"],
		Input:      form.GetString("input"),
		Mitigation: form.GetString("mitigation"),
		Start:      ints["start"],
		Size:       ints["size"],
		Repeat:     ints["repeat"],
		Layout:     form.GetString("layout"),
		Strict:     form.GetBool("strict"),
	}
	if form.GetBool("publish") {
		opts.StatusEndpoint = form.GetString("status_endpoint")
		opts.StatusUnitID = ints["status_unit_id"]
		opts.StatusAddress = ints["status_address"]
	}
	return opts, nil
}
