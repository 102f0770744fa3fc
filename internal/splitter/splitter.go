// Package splitter breaks consolidated contract schema documents into one file
// per message and response kind, deleting each consolidated document once all
// of its fragments are written.
//
// Reading and decoding are tolerant: a file that cannot be read, is not JSON,
// or is not a consolidated document is skipped. Writing and deleting are not:
// the first such failure aborts the run and is returned with the offending path.
package splitter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	json "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/erisprotocol/contracts-tokenfactory/internal/schema"
	"github.com/erisprotocol/contracts-tokenfactory/kit/colorlog"
	"github.com/erisprotocol/contracts-tokenfactory/kit/errutil"
)

type Options struct {
	Exclusions Exclusions
	// Workers is the number of documents processed concurrently. Values
	// below 1 mean 1.
	Workers int
	// DryRun prints the output paths without writing or deleting anything.
	DryRun bool
	// Progress receives one line per emitted file. Default: os.Stdout.
	Progress io.Writer
	Logger   *slog.Logger
}

type Splitter struct {
	opts Options
	log  *slog.Logger

	progressMu sync.Mutex

	claimsMu sync.Mutex
	claims   map[string]string // output path -> source document
}

// Result describes what Process did with one file.
type Result struct {
	Skipped  bool
	Contract string
	Outputs  []string
}

// Summary totals one Run.
type Summary struct {
	Scanned int // .json files looked at
	Split   int // consolidated documents split and removed
	Emitted int // fragment files written
	Skipped int // .json files left untouched
}

func New(opts Options) *Splitter {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Progress == nil {
		opts.Progress = os.Stdout
	}
	if opts.Logger == nil {
		opts.Logger = colorlog.New("schemasplit")
	}
	return &Splitter{
		opts:   opts,
		log:    opts.Logger,
		claims: make(map[string]string),
	}
}

func (s *Splitter) Options() Options { return s.opts }

// Run splits every consolidated document under root. It stops at the first
// write, delete or directory listing failure, or when ctx is cancelled;
// documents already split stay split.
func (s *Splitter) Run(ctx context.Context, root string) (Summary, error) {
	var (
		sum   Summary
		sumMu sync.Mutex
	)
	record := func(res Result) {
		sumMu.Lock()
		defer sumMu.Unlock()
		sum.Scanned++
		if res.Skipped {
			sum.Skipped++
			return
		}
		sum.Emitted += len(res.Outputs)
		sum.Split++
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)

	var walkErr error
	for path, err := range Traverse(root, s.opts.Exclusions) {
		if err != nil {
			walkErr = errutil.Op("walk", path, err)
			break
		}
		if gctx.Err() != nil {
			break
		}
		if !IsCandidate(path) {
			continue
		}
		g.Go(func() error {
			res, err := s.Process(gctx, path)
			if err != nil {
				return err
			}
			record(res)
			return nil
		})
	}

	err := g.Wait()
	if walkErr != nil {
		err = walkErr
	}
	if err == nil {
		err = ctx.Err()
	}
	return sum, err
}

// Process splits the document at path if it is a consolidated schema
// document. A nil error with Result.Skipped set means the file was left alone.
func (s *Splitter) Process(ctx context.Context, path string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	doc, frags, err := load(path)
	if err != nil {
		s.log.Debug("Skipping file", "path", path, "reason", err)
		return Result{Skipped: true}, nil
	}

	dir := filepath.Dir(path)
	res := Result{Contract: doc.ContractName}
	for _, f := range frags {
		out, err := s.Emit(dir, doc.ContractName, f.Field, f.Raw)
		if err != nil {
			return res, err
		}
		s.claim(out, path)
		res.Outputs = append(res.Outputs, out)
	}

	if !s.opts.DryRun {
		if err := os.Remove(path); err != nil {
			return res, errutil.Op("remove", path, err)
		}
	}
	s.log.Debug("Split document", "path", path, "contract", doc.ContractName, "files", len(res.Outputs))
	return res, nil
}

// Emit writes the compact form of raw to dir/<contract>_<field>.json,
// replacing any existing file, and prints the destination path.
func (s *Splitter) Emit(dir, contractName, field string, raw json.RawMessage) (string, error) {
	out := filepath.Join(dir, schema.OutputName(contractName, field))

	data, err := schema.Compact(raw)
	if err != nil {
		return out, errutil.Op("encode", out, err)
	}
	if !s.opts.DryRun {
		if err := os.WriteFile(out, data, 0644); err != nil {
			return out, errutil.Op("write", out, err)
		}
	}

	s.progressMu.Lock()
	defer s.progressMu.Unlock()
	if _, err := fmt.Fprintln(s.opts.Progress, out); err != nil {
		return out, errutil.Op("report", out, err)
	}
	return out, nil
}

// load is the recoverable half of Process.
func load(path string) (*schema.Document, []schema.Fragment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	doc, err := schema.Decode(data)
	if err != nil {
		return nil, nil, err
	}
	if err := schema.CheckField(schema.SanitizeName(doc.ContractName)); err != nil {
		return nil, nil, fmt.Errorf("contract_name: %w", err)
	}
	frags := doc.Fragments()
	for _, f := range frags {
		if err := schema.CheckField(f.Field); err != nil {
			return nil, nil, err
		}
	}
	return doc, frags, nil
}

// claim records that source produced out and warns when a different
// document already produced the same file in this run. The later write wins.
func (s *Splitter) claim(out, source string) {
	s.claimsMu.Lock()
	prev, ok := s.claims[out]
	s.claims[out] = source
	s.claimsMu.Unlock()

	if ok && prev != source {
		s.log.Warn("Output file written by more than one document", "file", out, "first", prev, "last", source)
	}
}
