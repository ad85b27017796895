package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"

	"avrbus/core"
	"avrbus/host/bridge"
	"avrbus/host/config"
	"avrbus/host/gpio"
	"avrbus/host/logging"
	"avrbus/host/serial"
	"avrbus/sim"
)

var (
	configFile = flag.String("config", "", "YAML configuration file")
	device     = flag.String("device", "", "Serial device path (overrides config)")
	baud       = flag.Int("baud", 0, "Baud rate (overrides config)")
	simulate   = flag.Bool("sim", false, "Run the firmware in-process against a simulated ATmega")
	watch      = flag.Bool("watch", false, "Re-apply bus settings when the config file changes")
	resetPin   = flag.Int("reset-pin", -1, "BCM GPIO wired to the MCU reset line (overrides config, 0 disables)")
	logLevel   = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	logFormat  = flag.String("log-format", "", "Log format: text or json (overrides config)")
	verbose    = flag.Bool("verbose", false, "Route firmware debug output to the log (sim mode)")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configFile != "" {
		loaded, err := config.Load(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(2)
		}
		cfg = loaded
	}
	applyFlags(cfg)

	if err := logging.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.File); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open log file: %v\n", err)
		os.Exit(2)
	}
	defer logging.Close()

	fmt.Println("avrbus host - SPI/I2C bridge console")
	fmt.Println("====================================")
	fmt.Println()

	client, avr, err := connect(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer client.Close()

	if err := client.Identify(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Firmware identified (%d byte dictionary)\n", len(client.Dictionary()))

	if err := applyBusConfig(client, cfg); err != nil {
		slog.Error("Applying bus configuration failed", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if *watch && *configFile != "" {
		go watchConfig(ctx, client)
	}

	fmt.Println("Enter commands (type 'help' for available commands, 'quit' to exit):")
	repl(client, cfg, avr)
}

func applyFlags(cfg *config.Config) {
	if *device != "" {
		cfg.Serial.Device = *device
	}
	if *baud != 0 {
		cfg.Serial.Baud = *baud
	}
	if *resetPin >= 0 {
		cfg.Reset.Pin = *resetPin
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
}

// connect returns a client on the serial link, or on the in-process
// simulator in sim mode. avr is nil unless simulating.
func connect(cfg *config.Config) (*bridge.Client, *sim.AVR, error) {
	timeout := time.Duration(cfg.Serial.AckTimeoutMs) * time.Millisecond

	if *simulate {
		logging.RouteDebug(*verbose)
		avr := sim.New()
		avr.AttachI2C(0x50, sim.NewMemory(256))
		avr.AttachSPI(&sim.EchoTarget{}, cfg.ChipSelect())
		slog.Info("Using simulated ATmega", "eeprom", "0x50", "spi_echo_cs", cfg.ChipSelect())
		return bridge.Loopback(avr, bridge.WithTimeout(timeout)), avr, nil
	}

	if cfg.Reset.Pin > 0 {
		reset, err := gpio.OpenReset(cfg.Reset.Pin, time.Duration(cfg.Reset.PulseMs)*time.Millisecond)
		if err != nil {
			return nil, nil, err
		}
		reset.Pulse()
		if err := reset.Close(); err != nil {
			slog.Warn("Releasing GPIO failed", "error", err)
		}
		// bootloader window
		time.Sleep(2 * time.Second)
	}

	fmt.Printf("Connecting to MCU on %s...\n", cfg.Serial.Device)
	client, err := bridge.Connect(&serial.Config{
		Device:      cfg.Serial.Device,
		Baud:        cfg.Serial.Baud,
		ReadTimeout: time.Duration(cfg.Serial.ReadTimeoutMs) * time.Millisecond,
	}, bridge.WithTimeout(timeout))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect: %w", err)
	}
	return client, nil, nil
}

func applyBusConfig(client *bridge.Client, cfg *config.Config) error {
	if err := client.ConfigureSPI(cfg.CoreSPI()); err != nil {
		return fmt.Errorf("spi: %w", err)
	}
	if err := client.ConfigureI2C(cfg.CoreI2C()); err != nil {
		return fmt.Errorf("i2c: %w", err)
	}
	slog.Info("Bus configured",
		"spi_divider", cfg.SPI.Divider, "spi_mode", cfg.SPI.Mode,
		"i2c_hz", cfg.I2C.FrequencyHz)
	return nil
}

func watchConfig(ctx context.Context, client *bridge.Client) {
	err := config.Watch(ctx, *configFile, func(cfg *config.Config, err error) {
		if err != nil {
			slog.Error("Config reload rejected", "error", err)
			return
		}
		if err := applyBusConfig(client, cfg); err != nil {
			slog.Error("Applying reloaded configuration failed", "error", err)
		}
	})
	if err != nil {
		slog.Error("Config watcher stopped", "error", err)
	}
}

func repl(client *bridge.Client, cfg *config.Config, avr *sim.AVR) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		parts, err := shlex.Split(scanner.Text())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		if len(parts) == 0 {
			continue
		}

		cmd, args := parts[0], parts[1:]
		switch cmd {
		case "quit", "exit", "q":
			fmt.Println("Goodbye!")
			return
		case "help", "?":
			printHelp()
		case "dict":
			fmt.Print(string(client.Dictionary()))
		case "apply":
			err = applyBusConfig(client, cfg)
		case "trace":
			if avr == nil {
				err = fmt.Errorf("trace is only available with -sim")
				break
			}
			core.SetDebugWriter(func(s string) { fmt.Println(s) })
			core.DumpBusTrace()
			logging.RouteDebug(*verbose)
		default:
			err = runBusCommand(client, cmd, args)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}
}

func runBusCommand(client *bridge.Client, cmd string, args []string) error {
	switch cmd {
	case "spi_config":
		if len(args) < 2 {
			return usage("spi_config <divider> <mode> [master] [double] [lsb] [irq]")
		}
		vals, err := parseBytes(args[:2])
		if err != nil {
			return err
		}
		var flags uint8
		for _, opt := range args[2:] {
			switch opt {
			case "master":
				flags |= core.SPIFlagMaster
			case "double":
				flags |= core.SPIFlagDoubleSpeed
			case "lsb":
				flags |= core.SPIFlagLSBFirst
			case "irq":
				flags |= core.SPIFlagInterrupt
			default:
				return fmt.Errorf("unknown spi option %q", opt)
			}
		}
		return client.ConfigureSPI(core.SPIConfigFromFlags(core.Divider(vals[0]), core.SPIMode(vals[1]), flags))

	case "select", "deselect":
		if len(args) != 1 {
			return usage(cmd + " <pin>")
		}
		pin, err := parseByte(args[0])
		if err != nil {
			return err
		}
		if cmd == "select" {
			return client.Select(core.Pin(pin))
		}
		return client.Deselect(core.Pin(pin))

	case "xfer":
		tx, err := parseBytes(args)
		if err != nil {
			return err
		}
		rx, err := client.Transfer(tx)
		if err != nil {
			return err
		}
		fmt.Printf("rx: % x\n", rx)
		return nil

	case "send":
		tx, err := parseBytes(args)
		if err != nil {
			return err
		}
		return client.Send(tx)

	case "i2c_config":
		cfg := core.I2CConfig{}
		if len(args) > 0 {
			hz, err := strconv.ParseUint(args[0], 0, 32)
			if err != nil {
				return err
			}
			cfg.FrequencyHz = uint32(hz)
		}
		return client.ConfigureI2C(cfg)

	case "start":
		st, err := client.Start()
		return printStatus(st, err)

	case "addr":
		if len(args) != 2 || (args[1] != "r" && args[1] != "w") {
			return usage("addr <address> r|w")
		}
		addr, err := parseByte(args[0])
		if err != nil {
			return err
		}
		dir := core.Write
		if args[1] == "r" {
			dir = core.Read
		}
		st, err := client.AddressSlave(core.I2CAddress(addr), dir)
		return printStatus(st, err)

	case "write":
		if len(args) != 1 {
			return usage("write <byte>")
		}
		b, err := parseByte(args[0])
		if err != nil {
			return err
		}
		st, err := client.SendByte(b)
		return printStatus(st, err)

	case "read":
		var (
			b   byte
			st  core.Status
			err error
		)
		if len(args) == 1 && args[0] == "ack" {
			b, st, err = client.ReadByteAck()
		} else {
			b, st, err = client.ReadByteNack()
		}
		if err != nil {
			return err
		}
		fmt.Printf("data: 0x%02x\n", b)
		return printStatus(st, nil)

	case "stop":
		return client.Stop()

	case "status":
		st, err := client.Status()
		return printStatus(st, err)

	case "i2c_read":
		if len(args) != 3 {
			return usage("i2c_read <address> <register> <count>")
		}
		vals, err := parseBytes(args)
		if err != nil {
			return err
		}
		buf := make([]byte, vals[2])
		if err := client.I2C().ReadRegister(vals[0], vals[1], buf); err != nil {
			return err
		}
		fmt.Printf("data: % x\n", buf)
		return nil

	case "i2c_write":
		if len(args) < 2 {
			return usage("i2c_write <address> <register> <bytes...>")
		}
		vals, err := parseBytes(args)
		if err != nil {
			return err
		}
		return client.I2C().WriteRegister(vals[0], vals[1], vals[2:])

	case "reg":
		if len(args) < 1 || len(args) > 2 {
			return usage("reg <name> [value]")
		}
		r, ok := core.RegByName(strings.ToUpper(args[0]))
		if !ok {
			return fmt.Errorf("unknown register %q", args[0])
		}
		if len(args) == 2 {
			v, err := parseByte(args[1])
			if err != nil {
				return err
			}
			return client.WriteReg(r, v)
		}
		v, err := client.ReadReg(r)
		if err != nil {
			return err
		}
		fmt.Printf("%s = 0x%02x\n", r, v)
		return nil
	}
	return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmd)
}

func printHelp() {
	fmt.Println("\nAvailable commands:")
	fmt.Println("  help                             - Show this help message")
	fmt.Println("  dict                             - Print the firmware dictionary")
	fmt.Println("  apply                            - Apply the configured SPI/I2C settings")
	fmt.Println("  spi_config <div> <mode> [opts]   - Configure SPI (opts: master double lsb irq)")
	fmt.Println("  select <pin> / deselect <pin>    - Drive a port B chip select")
	fmt.Println("  xfer <bytes...>                  - SPI full-duplex transfer")
	fmt.Println("  send <bytes...>                  - SPI transmit, discard input")
	fmt.Println("  i2c_config [hz]                  - Configure the TWI bit rate")
	fmt.Println("  start | stop | status            - TWI start, stop, read status")
	fmt.Println("  addr <address> r|w               - Send SLA+R/W")
	fmt.Println("  write <byte>                     - Send one data byte")
	fmt.Println("  read [ack]                       - Receive one byte (NACK unless ack)")
	fmt.Println("  i2c_read <addr> <reg> <n>        - Register read transaction")
	fmt.Println("  i2c_write <addr> <reg> <bytes>   - Register write transaction")
	fmt.Println("  reg <name> [value]               - Read or write a peripheral register")
	fmt.Println("  trace                            - Dump the bus trace (sim only)")
	fmt.Println("  quit/exit/q                      - Exit the program")
	fmt.Println()
}

func usage(s string) error {
	return fmt.Errorf("usage: %s", s)
}

func printStatus(st core.Status, err error) error {
	if err != nil {
		return err
	}
	fmt.Printf("status: 0x%02x (%s)\n", uint8(st), st)
	return nil
}

func parseByte(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid byte %q", s)
	}
	return uint8(v), nil
}

func parseBytes(args []string) ([]byte, error) {
	out := make([]byte, 0, len(args))
	for _, a := range args {
		b, err := parseByte(a)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
