package dashdb

import (
	"bufio"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/NotCoffee418/homedash/pkg/faults"
	"github.com/NotCoffee418/homedash/pkg/normalizer"
	"github.com/NotCoffee418/homedash/pkg/types"
	"github.com/jmoiron/sqlx"
)

const (
	PVSeedFile      = "FroniusDaten.csv"
	HeatingSeedFile = "Heizungstemperaturen.csv"
)

// SeedFromCSV imports the historical CSV exports from dir. A table is only
// seeded while empty; the pv table is also dropped and re-imported when it
// holds rows but no real power signal. Missing files are skipped.
func (s *Store) SeedFromCSV(dir string) (SeedResult, error) {
	var res SeedResult

	pvRows, err := s.count("pv")
	if err != nil {
		return res, err
	}
	signal, err := s.HasPVSignal()
	if err != nil {
		return res, err
	}
	if pvRows == 0 || !signal {
		records, err := readCSV(filepath.Join(dir, PVSeedFile))
		if err != nil {
			return res, err
		}
		if len(records) > 0 {
			if pvRows > 0 {
				s.log.Warnf("pv table has %d rows without signal, re-importing from %s", pvRows, PVSeedFile)
			}
			res.PV, err = s.importPV(records, pvRows > 0)
			if err != nil {
				return res, err
			}
		}
	}

	heatingRows, err := s.count("heating")
	if err != nil {
		return res, err
	}
	if heatingRows == 0 {
		records, err := readCSV(filepath.Join(dir, HeatingSeedFile))
		if err != nil {
			return res, err
		}
		if len(records) > 0 {
			res.Heating, err = s.importHeating(records)
			if err != nil {
				return res, err
			}
		}
	}

	if res.PV > 0 || res.Heating > 0 {
		s.log.Infof("Seeded %d pv and %d heating rows from %s", res.PV, res.Heating, dir)
	}
	return res, nil
}

func (s *Store) importPV(records []types.Raw, truncate bool) (int, error) {
	n := 0
	err := s.writeTx(func(tx *sqlx.Tx) error {
		n = 0
		if truncate {
			if _, err := tx.Exec("DELETE FROM pv"); err != nil {
				return err
			}
		}
		for _, raw := range records {
			sample := normalizer.NormalizePV(raw)
			ts, ok := storable(sample.Timestamp, sample.IsEmpty())
			if !ok {
				continue
			}
			if err := s.execPV(tx, ts, sample); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func (s *Store) importHeating(records []types.Raw) (int, error) {
	n := 0
	err := s.writeTx(func(tx *sqlx.Tx) error {
		n = 0
		for _, raw := range records {
			sample := normalizer.NormalizeHeating(raw)
			ts, ok := storable(sample.Timestamp, sample.IsEmpty())
			if !ok {
				continue
			}
			if err := s.execHeating(tx, ts, sample); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

// readCSV returns one raw record per data row keyed by header name. The
// delimiter is sniffed from the header line (";" or ",").
func readCSV(path string) ([]types.Raw, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, faults.Wrapf(faults.StoreRead, err, "open "+filepath.Base(path))
	}
	defer f.Close()

	br := bufio.NewReader(f)
	head, err := br.Peek(4096)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, faults.Wrapf(faults.StoreRead, err, "read "+filepath.Base(path))
	}
	firstLine := string(head)
	if i := strings.IndexByte(firstLine, '\n'); i >= 0 {
		firstLine = firstLine[:i]
	}

	r := csv.NewReader(br)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	if strings.Count(firstLine, ";") > strings.Count(firstLine, ",") {
		r.Comma = ';'
	}

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, faults.Wrapf(faults.Parse, err, "header of "+filepath.Base(path))
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var out []types.Raw
	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, faults.Wrapf(faults.Parse, err, filepath.Base(path))
		}
		raw := make(types.Raw, len(header))
		for i, name := range header {
			if i < len(fields) && name != "" {
				raw[name] = fields[i]
			}
		}
		out = append(out, raw)
	}
	return out, nil
}
