package main

import (
	"fmt"

	"github.com/spf13/cobra"

	levenshtein "github.com/Milo4uk/levenshtein-distance"
)

func (a *app) devicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "Show the device a session would run on",
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := a.sessionOptions()
			if err != nil {
				return err
			}
			s, err := levenshtein.NewSession(1, opts...)
			if err != nil {
				return err
			}
			defer s.Close()

			info := s.Device()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "adapter:  %s\n", info.Name)
			fmt.Fprintf(out, "backend:  %s\n", info.Backend)
			fmt.Fprintf(out, "type:     %s\n", info.DeviceType)
			fmt.Fprintf(out, "padding:  %d\n", s.Padding())
			return nil
		},
	}
}
