package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/smazurov/camerad/internal/camera"
	"github.com/spf13/cobra"
)

type listedDevice struct {
	Driver string        `json:"driver"`
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Path   string        `json:"path,omitempty"`
	Modes  []camera.Spec `json:"modes,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// CreateListDevicesCmd creates the list-devices command.
func CreateListDevicesCmd() *cobra.Command {
	var driverName string
	var showModes bool
	var asJSON bool
	var synthetic int

	cmd := &cobra.Command{
		Use:   "list-devices",
		Short: "List cameras the drivers can open",
		Long: `Enumerates the devices of every driver, or of the one given with --driver. ` +
			`With --modes each device is opened briefly to list the specs it supports.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			drivers := Drivers(DriverOptions{SyntheticCameras: synthetic})
			if driverName != "" {
				d, err := findDriver(drivers, driverName)
				if err != nil {
					return err
				}
				drivers = []camera.Driver{d}
			}

			var listed []listedDevice
			for _, d := range drivers {
				devices, err := d.Devices()
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", d.Name(), err)
					continue
				}
				for _, dev := range devices {
					entry := listedDevice{Driver: d.Name(), ID: dev.ID, Name: dev.Name, Path: dev.Path}
					if showModes {
						entry.Modes, err = probeModes(d, dev.ID)
						if err != nil {
							entry.Error = err.Error()
						}
					}
					listed = append(listed, entry)
				}
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(listed)
			}
			return printDevices(cmd.OutOrStdout(), listed, showModes)
		},
	}

	cmd.Flags().StringVarP(&driverName, "driver", "d", "", "Only list devices of this driver (v4l2, synthetic)")
	cmd.Flags().BoolVarP(&showModes, "modes", "m", false, "Open each device and list its supported specs")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")
	cmd.Flags().IntVar(&synthetic, "synthetic", 1, "Number of synthetic cameras to include")
	return cmd
}

// probeModes opens id just long enough to read its supported specs.
func probeModes(d camera.Driver, id string) ([]camera.Spec, error) {
	backend, err := d.New(id)
	if err != nil {
		return nil, err
	}
	if err := backend.Open(); err != nil {
		return nil, err
	}
	defer backend.Close()
	return backend.SupportedSpecs()
}

func printDevices(out io.Writer, devices []listedDevice, showModes bool) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(out, "No devices found")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DRIVER\tID\tNAME\tPATH")
	for _, d := range devices {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.Driver, d.ID, d.Name, d.Path)
		if !showModes {
			continue
		}
		if d.Error != "" {
			fmt.Fprintf(w, "\t\terror: %s\t\n", d.Error)
		}
		for _, m := range d.Modes {
			fmt.Fprintf(w, "\t\t%s\t\n", m)
		}
	}
	return w.Flush()
}

