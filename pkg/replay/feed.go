// Package replay feeds recorded tick data back into an event bus, so the
// synchronous machinery can be exercised deterministically without a live
// gateway session.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
	"unsafe"

	"github.com/govalues/decimal"
	"golang.org/x/exp/mmap"

	"github.com/rnovak/ibwire/pkg/gateway"
)

var ErrEof = errors.New("EOF")

// Record is one recorded tick. Fields are all 8 bytes wide so the struct
// has no padding; files are raw little-endian records back to back.
type Record struct {
	TimeStamp int64 // unix nanos
	TickerID  int64
	Bid       float64
	Ask       float64
	BidVolume float64
	AskVolume float64
}

// Feed memory-maps a record file and replays it.
type Feed struct {
	dataSourceName string
	reader         *mmap.ReaderAt
	bufferPool     *sync.Pool
}

func NewFeed(dataSourceName string) *Feed {
	return &Feed{
		dataSourceName: dataSourceName,
		bufferPool: &sync.Pool{
			New: func() interface{} {
				buffer := make([]byte, int(unsafe.Sizeof(Record{})))
				return &buffer
			},
		},
	}
}

func (f *Feed) Open() error {
	var err error
	f.reader, err = mmap.Open(f.dataSourceName)
	if err != nil {
		return fmt.Errorf("unable to open data source %q: %w", f.dataSourceName, err)
	}
	return nil
}

func (f *Feed) Close() {
	_ = f.reader.Close()
}

func (f *Feed) Read(index int64, record *Record) error {
	buffer := f.bufferPool.Get().(*[]byte)
	defer f.bufferPool.Put(buffer)

	offset := index * int64(len(*buffer))

	n, err := f.reader.ReadAt(*buffer, offset)
	if err != nil && err != io.EOF {
		return fmt.Errorf("unable to read: %w", err)
	}
	if n < len(*buffer) {
		return ErrEof
	}

	*record = *(*Record)(unsafe.Pointer(&(*buffer)[0])) // #nosec G103
	return nil
}

func (f *Feed) EntryCount() (int64, error) {
	entrySize := int64(unsafe.Sizeof(Record{}))

	fileInfo, err := os.Stat(f.dataSourceName)
	if err != nil {
		return 0, fmt.Errorf("unable to get data source %q stats: %w", f.dataSourceName, err)
	}

	totalSize := fileInfo.Size()
	if totalSize%entrySize != 0 {
		return 0, fmt.Errorf("file size is not a multiple of entry size")
	}

	return totalSize / entrySize, nil
}

// Run publishes every record as a tick event, in file order, until the file
// is exhausted or ctx expires.
func (f *Feed) Run(ctx context.Context, bus *gateway.Bus) error {
	count, err := f.EntryCount()
	if err != nil {
		return err
	}

	var record Record
	for index := int64(0); index < count; index++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.Read(index, &record); err != nil {
			return err
		}
		ev, err := eventFromRecord(record)
		if err != nil {
			return fmt.Errorf("record %d: %w", index, err)
		}
		bus.Publish(ev)
	}
	return nil
}

func eventFromRecord(record Record) (gateway.Event, error) {
	bid, err := decimal.NewFromFloat64(record.Bid)
	if err != nil {
		return gateway.Event{}, fmt.Errorf("bad bid %v: %w", record.Bid, err)
	}
	ask, err := decimal.NewFromFloat64(record.Ask)
	if err != nil {
		return gateway.Event{}, fmt.Errorf("bad ask %v: %w", record.Ask, err)
	}

	ev := gateway.NewEvent(gateway.EventTick).
		WithTickerID(record.TickerID).
		WithTime(time.Unix(0, record.TimeStamp)).
		WithField(gateway.FieldBid, bid).
		WithField(gateway.FieldAsk, ask)
	return ev, nil
}
