// flashlogctl inspects and edits lamp state flash images on the host.
//
//	flashlogctl format --image lamp.bin
//	flashlogctl set-rgb 255 128 0 --image lamp.bin
//	flashlogctl set-state 1 --image lamp.bin
//	flashlogctl scan --image lamp.bin --all
//	flashlogctl decode 0x0080FF01
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"lampcode-go/errcode"
	"lampcode-go/flashlog"
	"lampcode-go/services/store"
	"lampcode-go/state"
	"lampcode-go/x/logx"
	"lampcode-go/x/mathx"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type app struct {
	imagePath   string
	profilePath string
	logLevel    string
	over        profile
	log         *logx.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "flashlogctl",
		Short:         "Inspect and edit lamp state flash images",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.log = logx.New(cmd.ErrOrStderr())
			a.log.SetLevel(logx.ParseLevel(a.logLevel))
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.imagePath, "image", "i", "lamp.bin", "region image file")
	pf.StringVarP(&a.profilePath, "profile", "p", "", "YAML region profile (default nrf52840dk layout)")
	pf.StringVar(&a.logLevel, "log-level", "warn", "debug, info, warn or error")
	pf.Uint32Var(&a.over.Start, "start", 0, "region start address")
	pf.Uint32Var(&a.over.End, "end", 0, "region end address (exclusive)")
	pf.Uint32Var(&a.over.Slot, "slot", 0, "slot size in bytes")
	pf.Uint32Var(&a.over.Page, "page", 0, "page (erase unit) size in bytes")

	root.AddCommand(
		a.formatCmd(),
		a.scanCmd(),
		a.decodeCmd(),
		a.encodeCmd(),
		a.setStateCmd(),
		a.setRGBCmd(),
	)
	return root
}

// profile merges the profile file with any region flags given.
func (a *app) profile(cmd *cobra.Command) (profile, error) {
	p, err := loadProfile(a.profilePath)
	if err != nil {
		return p, err
	}
	f := cmd.Flags()
	if f.Changed("start") {
		p.Start = a.over.Start
	}
	if f.Changed("end") {
		p.End = a.over.End
	}
	if f.Changed("slot") {
		p.Slot = a.over.Slot
	}
	if f.Changed("page") {
		p.Page = a.over.Page
	}
	return p, nil
}

func (a *app) open(cmd *cobra.Command) (*image, error) {
	p, err := a.profile(cmd)
	if err != nil {
		return nil, err
	}
	return openImage(a.imagePath, p, flashlog.Options{Log: a.log.With("flashlog")})
}

func (a *app) formatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "format",
		Short: "Write a fully erased region image",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			im, err := a.open(cmd)
			if err != nil {
				return err
			}
			if err := im.log.Erase(); err != nil {
				return err
			}
			if err := im.save(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "formatted %s: %d pages, %d slots\n",
				im.path, im.region.Pages(), im.region.Capacity())
			return nil
		},
	}
}

func (a *app) scanCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Recover the newest record and report log usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			im, err := a.open(cmd)
			if err != nil {
				return err
			}
			rec, how, err := im.log.Recover()
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			r := im.region
			used := im.log.Used()
			fmt.Fprintf(w, "recovery: %s\n", how)
			fmt.Fprintf(w, "region:   0x%08X-0x%08X slot=%d page=%d\n", r.Start, r.End, r.SlotSize, r.PageSize)
			fmt.Fprintf(w, "cursor:   0x%08X\n", im.log.Cursor())
			fmt.Fprintf(w, "used:     %d/%d slots, %d/%d pages\n",
				used, r.Capacity(), mathx.CeilDiv(used*r.SlotSize, r.PageSize), r.Pages())
			if how != flashlog.RecoveryEmpty {
				fmt.Fprintf(w, "last:     %s\n", describe(rec))
			}
			if all {
				for _, s := range im.slots() {
					fmt.Fprintf(w, "0x%08X  %s\n", s.Addr, describe(s.Rec))
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "list every programmed slot")
	return cmd
}

func (a *app) decodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode a raw 32-bit record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseUint(args[0], 0, 32)
			if err != nil {
				if v, err = strconv.ParseUint(args[0], 16, 32); err != nil {
					return errcode.Wrap(errcode.InvalidParams, "flashlogctl.decode", err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), describe(state.Record(v)))
			return nil
		},
	}
}

func (a *app) encodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encode <state> <r> <g> <b>",
		Short: "Encode a value into the raw record stored in flash",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseBytes(args)
			if err != nil {
				return err
			}
			rec := state.Encode(state.Zero, v[0], v[1], v[2], v[3])
			b := state.Bytes(rec)
			fmt.Fprintf(cmd.OutOrStdout(), "0x%08X  bytes % X\n", uint32(rec), b[:])
			return nil
		},
	}
}

func (a *app) setStateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-state <0-255>",
		Short: "Store a new on/off state, keeping the colour",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseBytes(args)
			if err != nil {
				return err
			}
			return a.update(cmd, func(s *store.Store) error { return s.UpdateState(v[0]) })
		},
	}
}

func (a *app) setRGBCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-rgb <r> <g> <b>",
		Short: "Store a new colour, keeping the on/off state",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseBytes(args)
			if err != nil {
				return err
			}
			return a.update(cmd, func(s *store.Store) error { return s.UpdateRGB(v[0], v[1], v[2]) })
		},
	}
}

// update runs one store operation against the image and saves it. The image
// is written even when the append failed so partial programming is kept.
func (a *app) update(cmd *cobra.Command, fn func(*store.Store) error) error {
	im, err := a.open(cmd)
	if err != nil {
		return err
	}
	st := store.New(im.log, store.WithLogger(a.log.With("store")))
	if _, err := st.Init(); err != nil {
		return err
	}
	opErr := fn(st)
	if err := im.save(); err != nil {
		return err
	}
	if opErr != nil {
		return opErr
	}
	printValue(cmd.OutOrStdout(), st, im)
	return nil
}

func printValue(w io.Writer, st *store.Store, im *image) {
	fmt.Fprintf(w, "%s  cursor=0x%08X used=%d/%d\n",
		describe(st.Record()), im.log.Cursor(), im.log.Used(), im.log.Capacity())
}

func describe(rec state.Record) string {
	if !rec.Valid() {
		return "erased"
	}
	l := rec.Light()
	onOff := "off"
	if l.On() {
		onOff = "on"
	}
	return fmt.Sprintf("state=%d (%s) rgb=(%d,%d,%d) raw=0x%08X", l.State, onOff, l.R, l.G, l.B, uint32(rec))
}

func parseBytes(args []string) ([]uint8, error) {
	out := make([]uint8, len(args))
	for i, s := range args {
		v, err := strconv.ParseUint(s, 0, 8)
		if err != nil {
			return nil, errcode.Wrap(errcode.InvalidParams, "flashlogctl.args", err)
		}
		out[i] = uint8(v)
	}
	return out, nil
}
