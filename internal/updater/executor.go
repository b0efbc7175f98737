package updater

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bigbag/pico-ota/internal/diag"
	"github.com/bigbag/pico-ota/internal/flash"
	"github.com/bigbag/pico-ota/internal/fsimage"
	"github.com/bigbag/pico-ota/internal/table"
)

// ErrProtected is returned for a write whose destination lies in front of
// the application, over the updater or its command page.
var ErrProtected = errors.New("destination overlaps updater region")

// Executor runs the update described by the command page once.
type Executor struct {
	region *flash.Region
	mem    io.ReaderAt
	fs     *fsimage.Adapter
	cfg    Config
	log    logrus.FieldLogger

	state State

	// page is the RAM copy of the command table; once it is taken the
	// flash copy is erased.
	page  [table.Size]byte
	chunk [flash.BlockSize]byte
}

// cursor tracks one write command.
type cursor struct {
	remaining uint32
	offset    uint32
	dest      uint32
}

func (c *cursor) advance(n uint32) {
	c.remaining -= n
	c.offset += n
	c.dest += flash.BlockSize
}

// New creates an Executor. region performs flash mutation, mem reads the
// command page, fs is the embedded filesystem holding the payload files.
func New(region *flash.Region, mem io.ReaderAt, fs fsimage.Filesystem, opts ...Option) *Executor {
	if region == nil || mem == nil || fs == nil {
		panic("updater: region, mem and fs are required")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Executor{
		region: region,
		mem:    mem,
		fs:     fsimage.NewAdapter(fs),
		cfg:    cfg,
		log:    cfg.Logger,
		state:  Idle,
	}
}

// State returns the state the last run ended in.
func (e *Executor) State() State {
	return e.state
}

// Run validates the command page and, if an update is pending, consumes the
// page and performs every command in order. It stops at the first failure;
// there is no rollback of blocks already committed.
//
// A missing signature or an empty table is not an error. Every returned
// error is a *StepError or a *table.FormatError.
func (e *Executor) Run() (Result, error) {
	var res Result

	e.state = Validating
	tbl, err := e.load()
	if err != nil {
		e.state = Aborted
		if errors.Is(err, table.ErrNoSignature) || errors.Is(err, table.ErrEmpty) {
			e.log.Info(err.Error())
			res.Outcome = NoUpdate
			return res, nil
		}
		e.log.WithError(err).Error("ota table rejected")
		res.Outcome = Rejected
		return res, err
	}

	// Consume the page before anything else so a table is attempted at
	// most once, whatever happens below.
	if err := e.region.EraseBlock(e.cfg.Layout.TableOffset); err != nil {
		return e.abort(&res, StepConsume, -1, err)
	}
	res.Consumed = true

	e.state = Mounting
	mountLine := "lfsmount(" + diag.Hex(tbl.FSStart) + "," + diag.Hex(tbl.FSBlockSize) + "," + diag.Hex(tbl.FSSize) + ") = "
	if err := e.fs.Mount(tbl.FSStart, tbl.FSBlockSize, tbl.FSSize); err != nil {
		e.log.Error(mountLine + "failed")
		return e.abort(&res, StepMount, -1, err)
	}
	e.log.Info(mountLine + "success")

	e.state = Processing
	for i, ent := range tbl.Entries {
		switch ent.Kind {
		case table.KindWrite:
			if step, err := e.write(i, len(tbl.Entries), ent, &res); err != nil {
				return e.abort(&res, step, i, err)
			}
			res.Written++
		default:
			e.log.WithFields(logrus.Fields{"entry": i, "kind": ent.Kind}).Info("skip unknown command")
			res.Skipped++
		}
	}

	e.state = Done
	res.Outcome = Completed
	return res, nil
}

// load copies the command page into RAM and decodes the copy.
func (e *Executor) load() (*table.Table, error) {
	n, err := e.mem.ReadAt(e.page[:], int64(e.cfg.Layout.TableOffset))
	if n < len(e.page) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, &StepError{Step: StepLoad, Entry: -1, Err: err}
	}

	tbl, err := table.Decode(e.page[:])
	if err != nil {
		return nil, err
	}
	if e.cfg.VerifyChecksum {
		if err := tbl.VerifyChecksum(e.page[:]); err != nil {
			return nil, &StepError{Step: StepLoad, Entry: -1, Err: err}
		}
	}
	return tbl, nil
}

// write copies one file range into flash, one block per chunk.
func (e *Executor) write(i, total int, ent table.Entry, res *Result) (Step, error) {
	log := e.log.WithFields(logrus.Fields{
		"entry":   i,
		"offset":  ent.FileOffset,
		"length":  ent.FileLength,
		"address": ent.FlashAddress,
	})
	log.Info("write " + ent.Filename)

	if ent.FlashAddress < e.cfg.Layout.AppOffset {
		log.Error("destination overlaps updater")
		return StepCheck, errors.Wrapf(ErrProtected, "0x%08X", ent.FlashAddress)
	}
	if ent.FlashAddress%flash.BlockSize != 0 {
		log.Error("destination not block aligned")
		return StepCheck, errors.Wrapf(flash.ErrUnaligned, "0x%08X", ent.FlashAddress)
	}

	if err := e.fs.Open(ent.Filename); err != nil {
		log.WithError(err).Error("open failed")
		return StepOpen, err
	}
	defer e.fs.Close()

	if err := e.fs.Seek(ent.FileOffset); err != nil {
		log.WithError(err).Error("seek failed")
		return StepSeek, err
	}

	cur := cursor{remaining: ent.FileLength, offset: ent.FileOffset, dest: ent.FlashAddress}
	blocks := int(flash.Blocks(ent.FileLength, flash.BlockSize))
	for block := 1; cur.remaining > 0; block++ {
		chunk := e.chunk[:min(cur.remaining, flash.BlockSize)]
		if _, err := e.fs.ReadFull(chunk); err != nil {
			log.WithError(err).Errorf("read %s failed at file offset %s", e.fs.Current(), diag.Hex(cur.offset))
			return StepRead, err
		}
		if err := e.region.CommitBlock(cur.dest, chunk); err != nil {
			log.WithError(err).Errorf("flash failed at %s", diag.Hex(cur.dest))
			return StepCommit, err
		}
		cur.advance(uint32(len(chunk)))
		res.Blocks++

		if e.cfg.Progress != nil {
			e.cfg.Progress(Progress{
				Entry:   i,
				Entries: total,
				Block:   block,
				Blocks:  blocks,
				Total:   res.Blocks,
			})
		}
	}

	return "", nil
}

func (e *Executor) abort(res *Result, step Step, entry int, err error) (Result, error) {
	e.state = Aborted
	res.Outcome = Failed
	return *res, &StepError{Step: step, Entry: entry, Err: err}
}
