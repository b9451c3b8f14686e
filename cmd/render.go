package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nguyentranbao-ct/catalog-console/internal/app"
	"github.com/nguyentranbao-ct/catalog-console/internal/models"
)

func newRenderCmd(opts *rootOptions) *cobra.Command {
	var (
		params = models.DefaultRenderParameters()
		out    string
	)
	cmd := &cobra.Command{
		Use:   "render ID",
		Short: "Render a product preview with the given camera and light",
		Long: fmt.Sprintf("Values outside the accepted ranges are clamped: horizontal %d..%d, vertical %d..%d, light %d..%d.",
			models.MinHorizontalAngle, models.MaxHorizontalAngle,
			models.MinVerticalAngle, models.MaxVerticalAngle,
			models.MinLightEnergy, models.MaxLightEnergy),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return run(cmd, opts, func(ctx context.Context, d app.Deps) error {
				sess, applied, err := d.Renders.SetParameters(id, params)
				defer d.Renders.Close(id)
				if err != nil {
					return err
				}
				if applied != params {
					fmt.Fprintf(cmd.ErrOrStderr(), "parameters clamped to h=%g v=%g l=%g\n",
						applied.HorizontalAngle, applied.VerticalAngle, applied.LightEnergy)
				}

				done := make(chan struct{})
				go func() {
					sess.Wait()
					close(done)
				}()
				select {
				case <-done:
				case <-ctx.Done():
					return ctx.Err()
				}

				snap := sess.Snapshot()
				if snap.State != models.RenderStateReady {
					return errors.New("render failed: " + snap.Error)
				}
				data, _, err := sess.Artifact()
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), out, data)
			})
		},
	}
	cmd.Flags().Float64Var(&params.HorizontalAngle, "horizontal", params.HorizontalAngle, "horizontal camera angle in degrees")
	cmd.Flags().Float64Var(&params.VerticalAngle, "vertical", params.VerticalAngle, "vertical camera angle in degrees")
	cmd.Flags().Float64Var(&params.LightEnergy, "light", params.LightEnergy, "light energy")
	cmd.Flags().StringVarP(&out, "out", "o", "-", "file to write, - for stdout")
	return cmd
}
