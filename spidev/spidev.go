//go:build linux

// Package spidev implements regmap.Transport on top of a Linux spidev
// character device, using full-duplex SPI transfers.
package spidev

import (
	"fmt"
	"unsafe"

	"github.com/spe-net/adin2111/core/logging"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

var logger = logging.New("spidev")

// spidev ioctl requests, from <linux/spi/spidev.h>.
const (
	iocWrMode        = 0x40016B01
	iocWrBitsPerWord = 0x40016B03
	iocWrMaxSpeedHz  = 0x40046B04

	iocMessageBase = 0x40006B00
	iocMessageSize = 32 // sizeof(struct spi_ioc_transfer)
)

func iocMessage(n int) uint {
	return iocMessageBase | uint(n*iocMessageSize)<<16
}

// spiIocTransfer mirrors struct spi_ioc_transfer.
type spiIocTransfer struct {
	txBuf       uint64
	rxBuf       uint64
	length      uint32
	speedHz     uint32
	delayUsecs  uint16
	bitsPerWord uint8
	csChange    uint8
	txNbits     uint8
	rxNbits     uint8
	pad         uint16
}

// Config selects the SPI device and bus parameters.
type Config struct {
	// Device is the spidev path, e.g. /dev/spidev0.0.
	Device string `json:"device"`

	// SpeedHz is the SCLK frequency. The default is 10MHz.
	SpeedHz uint32 `json:"speedHz,omitempty"`

	// Mode is the SPI mode (CPOL/CPHA). The device uses mode 0.
	Mode uint8 `json:"mode,omitempty"`
}

func (cfg *Config) applyDefaults() {
	if cfg.SpeedHz == 0 {
		cfg.SpeedHz = 10_000_000
	}
}

// Transport talks to the device over a spidev file descriptor.
// Transact is not safe for concurrent use; the register file client
// serializes callers.
type Transport struct {
	fd      int
	speedHz uint32
}

// Open opens and configures a spidev device.
func Open(cfg Config) (*Transport, error) {
	cfg.applyDefaults()
	fd, err := unix.Open(cfg.Device, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}

	tr := &Transport{fd: fd, speedHz: cfg.SpeedHz}
	mode, bits := cfg.Mode, uint8(8)
	if err := tr.ioctl(iocWrMode, unsafe.Pointer(&mode)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set mode: %w", err)
	}
	if err := tr.ioctl(iocWrBitsPerWord, unsafe.Pointer(&bits)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set bits per word: %w", err)
	}
	if err := tr.ioctl(iocWrMaxSpeedHz, unsafe.Pointer(&cfg.SpeedHz)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("set speed: %w", err)
	}

	logger.Info("device opened",
		zap.String("device", cfg.Device),
		zap.Uint32("speedHz", cfg.SpeedHz),
	)
	return tr, nil
}

// Transact implements regmap.Transport with one full-duplex transfer.
func (tr *Transport) Transact(tx []byte) (rx []byte, e error) {
	rx = make([]byte, len(tx))
	xfer := spiIocTransfer{
		txBuf:       uint64(uintptr(unsafe.Pointer(&tx[0]))),
		rxBuf:       uint64(uintptr(unsafe.Pointer(&rx[0]))),
		length:      uint32(len(tx)),
		speedHz:     tr.speedHz,
		bitsPerWord: 8,
	}
	if err := tr.ioctl(iocMessage(1), unsafe.Pointer(&xfer)); err != nil {
		return nil, fmt.Errorf("transfer: %w", err)
	}
	return rx, nil
}

// Close releases the file descriptor.
func (tr *Transport) Close() error {
	return unix.Close(tr.fd)
}

func (tr *Transport) ioctl(req uint, arg unsafe.Pointer) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(tr.fd), uintptr(req), uintptr(arg))
	if errno != 0 {
		return errno
	}
	return nil
}
