package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/memgate/pkg/address"
	"github.com/ajitpratap0/memgate/pkg/compression"
	"github.com/ajitpratap0/memgate/pkg/connector/instance"
	"github.com/ajitpratap0/memgate/pkg/dumpsink"
	"github.com/ajitpratap0/memgate/pkg/memerrors"
	"github.com/ajitpratap0/memgate/pkg/physmem"
)

func writeJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return memerrors.Wrap(err, memerrors.ErrorTypeInternal, "failed to encode JSON")
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func newListCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available connectors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			inv, err := a.inventory(cmd.Context())
			if err != nil {
				return err
			}
			list := inv.List()
			if asJSON {
				return writeJSON(a.out, list)
			}

			fmt.Fprintln(a.out, "Available Connectors:")
			for _, s := range list {
				fmt.Fprintf(a.out, "  - %-12s %-8s %s (%s)\n", s.Name, s.Version, s.Description, s.Source)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

// connectorInfo is the output of the info command.
type connectorInfo struct {
	Name             string  `json:"name"`
	Version          string  `json:"version"`
	Source           string  `json:"source"`
	AddressSpaceSize *uint64 `json:"address_space_size"`
	RealSize         uint64  `json:"real_size"`
	PageSize         uint64  `json:"page_size"`
	ReadOnly         bool    `json:"read_only"`
	ThreadSafe       bool    `json:"thread_safe"`
	IdealBatchSize   int     `json:"ideal_batch_size,omitempty"`
}

func newInfoCmd(a *app) *cobra.Command {
	var (
		connArgs string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "info <connector>",
		Short: "Show connector metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := a.inventory(cmd.Context())
			if err != nil {
				return err
			}
			summary, ok := inv.Lookup(args[0])
			if !ok {
				return memerrors.Newf(memerrors.ErrorTypeNotFound, "connector %s not found", args[0])
			}

			return a.withInstance(cmd.Context(), args[0], connArgs, func(inst *instance.Instance) error {
				md, err := inst.Metadata()
				if err != nil {
					return err
				}
				info := connectorInfo{
					Name:             summary.Name,
					Version:          summary.Version,
					Source:           summary.Source,
					AddressSpaceSize: md.AddressSpaceSize,
					RealSize:         md.RealSize,
					PageSize:         md.PageSize,
					ReadOnly:         md.ReadOnly,
					ThreadSafe:       md.ThreadSafe,
					IdealBatchSize:   md.IdealBatchSize,
				}
				if asJSON {
					return writeJSON(a.out, info)
				}

				size := "unknown"
				if md.SizeKnown() {
					size = fmt.Sprintf("%#x", md.Size())
				}
				fmt.Fprintf(a.out, "Connector:     %s %s (%s)\n", info.Name, info.Version, info.Source)
				fmt.Fprintf(a.out, "Address space: %s\n", size)
				fmt.Fprintf(a.out, "Real size:     %#x\n", info.RealSize)
				fmt.Fprintf(a.out, "Page size:     %#x\n", info.PageSize)
				fmt.Fprintf(a.out, "Read-only:     %v\n", info.ReadOnly)
				fmt.Fprintf(a.out, "Thread-safe:   %v\n", info.ThreadSafe)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&connArgs, "args", "a", "", "Connector arguments")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func newReadCmd(a *app) *cobra.Command {
	var (
		connArgs string
		typ      string
	)

	cmd := &cobra.Command{
		Use:   "read <connector> <address> <count>",
		Short: "Read physical memory",
		Long: `Read physical memory. With --type bytes (the default) count is a byte
length and the result is a hex dump; otherwise count values of the given
type are printed one per line.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := address.ParseAddress(args[1])
			if err != nil {
				return err
			}
			count, err := address.ParseSize(args[2])
			if err != nil {
				return err
			}
			vt, err := parseValueType(typ)
			if err != nil {
				return err
			}

			return a.withInstance(cmd.Context(), args[0], connArgs, func(inst *instance.Instance) error {
				if vt == typeBytes {
					data, err := physmem.ReadRange(inst, addr, int(count))
					if err != nil {
						return err
					}
					dumper := hex.Dumper(a.out)
					defer dumper.Close()
					_, err = dumper.Write(data)
					return err
				}

				lines, err := readValues(inst, addr, vt, int(count))
				if err != nil {
					return err
				}
				for _, line := range lines {
					fmt.Fprintln(a.out, line)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&connArgs, "args", "a", "", "Connector arguments")
	cmd.Flags().StringVarP(&typ, "type", "t", string(typeBytes), "Value type: bytes, u8, u16, u32, u64, i8, i16, i32, i64, f32, f64")
	return cmd
}

func newWriteCmd(a *app) *cobra.Command {
	var (
		connArgs string
		typ      string
	)

	cmd := &cobra.Command{
		Use:   "write <connector> <address> <value>",
		Short: "Write physical memory",
		Long: `Write physical memory. With --type bytes (the default) value is a hex
string such as deadbeef; otherwise it is a number of the given type.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := address.ParseAddress(args[1])
			if err != nil {
				return err
			}
			vt, err := parseValueType(typ)
			if err != nil {
				return err
			}

			return a.withInstance(cmd.Context(), args[0], connArgs, func(inst *instance.Instance) error {
				n, err := writeValue(inst, addr, vt, args[2])
				if err != nil {
					return err
				}
				fmt.Fprintf(a.out, "wrote %d bytes at %s\n", n, addr)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&connArgs, "args", "a", "", "Connector arguments")
	cmd.Flags().StringVarP(&typ, "type", "t", string(typeBytes), "Value type: bytes, u8, u16, u32, u64, i8, i16, i32, i64, f32, f64")
	return cmd
}

func newDumpCmd(a *app) *cobra.Command {
	var (
		connArgs string
		algName  string
		level    int
		zeroFill bool
		region   string
		creds    string
	)

	cmd := &cobra.Command{
		Use:   "dump <connector> <address> <length> <destination>",
		Short: "Dump physical memory to a file or object storage",
		Long: `Dump a physical memory range. The destination is a path, file://path,
s3://bucket/key or gs://bucket/object.

Example:
  memgate dump coredump 0 1G s3://forensics/vm0.raw.zst --args /var/vm0.raw --compression zstd`,
		Args: cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := address.ParseAddress(args[1])
			if err != nil {
				return err
			}
			length, err := address.ParseSize(args[2])
			if err != nil {
				return err
			}
			if length == 0 {
				return memerrors.New(memerrors.ErrorTypeValidation, "dump length must be positive")
			}
			alg, err := compression.ParseAlgorithm(algName)
			if err != nil {
				return err
			}

			return a.withInstance(cmd.Context(), args[0], connArgs, func(inst *instance.Instance) error {
				ropts := []physmem.ReaderOption{physmem.WithChunkSize(a.cfg.Access.ChunkSize)}
				if zeroFill {
					ropts = append(ropts, physmem.WithZeroFill())
				}
				src := io.NewSectionReader(physmem.NewReaderAt(inst, ropts...), int64(addr.Uint64()), int64(length))

				res, err := dumpsink.Write(cmd.Context(), args[3], src,
					dumpsink.WithCompression(alg, compression.Level(level)),
					dumpsink.WithLogger(a.log),
					dumpsink.WithRegion(region),
					dumpsink.WithCredentialsFile(creds))
				if err != nil {
					return err
				}
				if res.BytesIn < int64(length) {
					a.log.Warn("dump truncated at end of address space")
				}
				fmt.Fprintf(a.out, "dumped %d bytes to %s (%d bytes written)\n",
					res.BytesIn, res.Destination, res.BytesOut)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&connArgs, "args", "a", "", "Connector arguments")
	cmd.Flags().StringVarP(&algName, "compression", "c", "none", "Compression: "+algorithmNames())
	cmd.Flags().IntVar(&level, "level", int(compression.Default), "Compression level 1-9")
	cmd.Flags().BoolVar(&zeroFill, "zero-fill", false, "Write zeros for unreadable chunks instead of failing")
	cmd.Flags().StringVar(&region, "s3-region", "", "AWS region for s3:// destinations")
	cmd.Flags().StringVar(&creds, "gcs-credentials", "", "Service account key file for gs:// destinations")
	return cmd
}

func algorithmNames() string {
	var names []string
	for _, alg := range compression.Algorithms() {
		names = append(names, string(alg))
	}
	return strings.Join(names, ", ")
}

