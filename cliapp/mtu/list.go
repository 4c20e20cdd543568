package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"go.uber.org/zap"

	"mtu/lut"
	"mtu/mcu"
	"mtu/memmodel"
	"mtu/settings"
	"mtu/transport"
	"mtu/util"
)

func cmdTargets(_ context.Context, args []string, out io.Writer, _ *zap.Logger) error {
	fs := flag.NewFlagSet("targets", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tDEVICE\tCPU\tSERIES\tMAX MHZ\tUART\tDEFAULT MEMORY")
	for _, t := range mcu.Targets() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%s\t%s\n", t.Order, t.Device, t.CPU, t.Series, t.MaxCPUFreqMHz, t.UARTPins, t.DefaultMemoryDevice)
	}
	return tw.Flush()
}

func cmdPorts(_ context.Context, args []string, out io.Writer, log *zap.Logger) error {
	fs := flag.NewFlagSet("ports", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DRIVER\tPORT\tDESCRIPTION")
	for _, nd := range transport.Drivers() {
		devices, err := nd.Driver.Detect()
		if err != nil {
			log.Warn("ports: detect", zap.String("driver", nd.Name), zap.Error(err))
			continue
		}
		for _, d := range devices {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", nd.Name, d.Port, d.DisplayName)
		}
	}
	return tw.Flush()
}

func modelsFlag(fs *flag.FlagSet) *string {
	return fs.String("models", util.Getenv("MTU_MODEL_DIR", ""), "directory of extra chip models layered over the built-in ones")
}

func cmdChips(_ context.Context, args []string, out io.Writer, log *zap.Logger) error {
	fs := flag.NewFlagSet("chips", flag.ContinueOnError)
	models := modelsFlag(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	lib := memmodel.DefaultLibrary(log, *models)
	for _, vendor := range lib.Vendors() {
		for _, class := range lib.Classes(vendor) {
			for _, chip := range lib.Chips(vendor, class) {
				fmt.Fprintf(out, "%s/%s/%s\n", vendor, class, chip)
			}
		}
	}
	return nil
}

func cmdLUT(_ context.Context, args []string, out io.Writer, log *zap.Logger) error {
	fs := flag.NewFlagSet("lut", flag.ContinueOnError)
	models := modelsFlag(fs)
	chip := fs.String("chip", "", "chip model path <vendor>/<deviceClass>/<chip>; defaults to the saved selection")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *chip == "" {
		store, err := settings.OpenDefault(log)
		if err != nil {
			return err
		}
		if err = store.Load(); err != nil {
			log.Warn("lut: settings", zap.Error(err))
		}
		*chip = store.Get().MemChip
	}

	model, err := memmodel.DefaultLibrary(log, *models).LoadPath(*chip)
	if err != nil {
		return err
	}
	table, err := lut.Generate(model)
	if err != nil {
		return err
	}

	p := model.Properties
	fmt.Fprintf(out, "%s (%s)\n", strings.TrimSuffix(model.Path(), ".json"), model.DeviceClass)
	fmt.Fprintf(out, "size %d KB, page %d, sector %d, block %d, dummy cycles %d, ddr %v\n\n",
		p.SizeKB, p.PageSize, p.SectorSize, p.BlockSize, p.ReadDummyCycles, p.DDR)
	fmt.Fprint(out, table.String())
	return nil
}
