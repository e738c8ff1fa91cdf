// Command acfs works on ACFS image files: format an image, store and
// fetch blobs, list the directory, and check integrity.
//
//	acfs -img disk.img format
//	acfs -img disk.img put settings config.bin
//	acfs -img disk.img get settings
//	acfs -img disk.img ls
package main

import (
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/acfs/go-acfs/filesystem/acfs"
	"github.com/acfs/go-acfs/storage"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: acfs [flags] <command> [args]

commands:
  format               write a fresh filesystem to the image
  put <id> <file>      store a file's contents under id
  get <id> [file]      fetch the blob under id (stdout when no file given)
  rm <id>              delete the entry under id
  ls                   list stored entries
  stat                 print space accounting
  fsck                 verify every stored payload against its CRC
  defrag               consolidate scattered entries

flags:
`)
	flag.PrintDefaults()
}

func main() {
	var (
		img      = flag.String("img", "acfs.img", "image file to operate on")
		size     = flag.Uint("size", 64*1024, "image size in bytes")
		cluster  = flag.Uint("cluster", 256, "cluster size in bytes")
		reserved = flag.Uint("reserved", 4, "clusters reserved for the system region")
		verbose  = flag.Bool("v", false, "enable debug logging")
	)
	flag.Usage = usage
	flag.Parse()

	if *verbose {
		log.SetLevel(log.DebugLevel)
	}
	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}
	cmd, args := flag.Arg(0), flag.Args()[1:]

	dev, err := storage.OpenFileDevice(*img, uint32(*size))
	if err != nil {
		log.Fatalf("could not open device: %v", err)
	}
	defer dev.Close()

	cfg := acfs.Config{
		ClusterSize:      uint16(*cluster),
		ReservedClusters: uint16(*reserved),
		FormatIfInvalid:  cmd == "format",
		EnableCRCCheck:   true,
	}

	fs := acfs.New(dev)
	if cmd == "format" {
		if err := fs.Format(cfg); err != nil {
			log.Fatalf("format failed: %v", err)
		}
		fmt.Printf("formatted %s: %d-byte clusters, %d reserved\n", *img, *cluster, *reserved)
		return
	}

	if err := fs.Mount(cfg); err != nil {
		log.Fatalf("mount failed: %v", err)
	}
	defer fs.Unmount()

	if err := run(fs, cmd, args); err != nil {
		log.Fatalf("%s failed: %v", cmd, err)
	}
}

func run(fs *acfs.FileSystem, cmd string, args []string) error {
	switch cmd {
	case "put":
		if len(args) != 2 {
			return fmt.Errorf("put wants <id> <file>")
		}
		data, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		if err := fs.Write(args[0], data); err != nil {
			return err
		}
		fmt.Printf("stored %q: %d bytes\n", args[0], len(data))
		return nil

	case "get":
		if len(args) < 1 || len(args) > 2 {
			return fmt.Errorf("get wants <id> [file]")
		}
		data, err := fs.ReadAll(args[0])
		if err != nil {
			return err
		}
		if len(args) == 2 {
			return os.WriteFile(args[1], data, 0o644)
		}
		_, err = os.Stdout.Write(data)
		return err

	case "rm":
		if len(args) != 1 {
			return fmt.Errorf("rm wants <id>")
		}
		return fs.Delete(args[0])

	case "ls":
		infos, err := fs.List()
		if err != nil {
			return err
		}
		for _, e := range infos {
			fmt.Printf("%-32s %8d bytes  %4d clusters\n", e.ID, e.Size, e.Clusters)
		}
		return nil

	case "stat":
		st, err := fs.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("total: %d bytes\nused:  %d bytes\nfree:  %d bytes\nentries: %d\n",
			st.TotalBytes, st.UsedBytes, st.FreeBytes, st.DataCount)
		return nil

	case "fsck":
		if err := fs.CheckIntegrity(); err != nil {
			return err
		}
		fmt.Println("all payloads verified")
		return nil

	case "defrag":
		return fs.Defragment()

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}
