package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Agrid-Dev/tadox/internal/api"
	"github.com/Agrid-Dev/tadox/internal/store"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Link an account with the device code flow and select a home",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		da, err := e.client.StartDeviceAuth(ctx)
		if err != nil {
			return err
		}
		uri := da.VerificationURIComplete
		if uri == "" {
			uri = da.VerificationURI
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Open %s and confirm code %s\n", uri, da.UserCode)

		if err := e.client.PollForToken(ctx, da, e.cfg.DeviceAuth.Timeout); err != nil {
			if errors.Is(err, api.ErrDeviceAuthTimeout) {
				return fmt.Errorf("code was not confirmed within %s", e.cfg.DeviceAuth.Timeout)
			}
			return err
		}

		homes, err := e.client.GetHomes(ctx)
		if err != nil {
			return err
		}
		home, err := pickHome(homes, e.cfg.Home.ID)
		if err != nil {
			return err
		}
		if err := e.store.Update(func(s *store.State) {
			s.HomeID = home.ID
			s.HomeName = home.Name
		}); err != nil {
			return err
		}
		fmt.Fprintf(out, "Linked home %d (%s)\n", home.ID, home.Name)
		return nil
	},
}

var homesCmd = &cobra.Command{
	Use:   "homes",
	Short: "List the homes of the linked account",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup()
		if err != nil {
			return err
		}
		homes, err := e.client.GetHomes(cmd.Context())
		if err != nil {
			if api.IsAuthError(err) || errors.Is(err, api.ErrNotAuthenticated) {
				return fmt.Errorf("%w; run tadox login", err)
			}
			return err
		}
		selected := e.store.State().HomeID
		for _, h := range homes {
			mark := " "
			if h.ID == selected {
				mark = "*"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d\t%s\n", mark, h.ID, h.Name)
		}
		return nil
	},
}

// pickHome returns the home with the requested id, or the first one when
// want is zero.
func pickHome(homes []api.HomeRef, want int) (api.HomeRef, error) {
	if len(homes) == 0 {
		return api.HomeRef{}, errors.New("account has no homes")
	}
	if want == 0 {
		return homes[0], nil
	}
	i := slices.IndexFunc(homes, func(h api.HomeRef) bool { return h.ID == want })
	if i < 0 {
		return api.HomeRef{}, fmt.Errorf("home %d not found in account", want)
	}
	return homes[i], nil
}
