package tradelog

import (
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"mt5-ensemble-bot/internal/types"
)

var mu sync.Mutex

// Writer appends trade records to the JSONL audit file and completed
// trades to the CSV history. Both files are append-only.
type Writer struct {
	auditPath   string
	historyPath string
}

func NewWriter(auditPath, historyPath string) *Writer {
	if auditPath == "" {
		auditPath = "orders_audit.jsonl"
	}
	if historyPath == "" {
		historyPath = "trade_history.csv"
	}
	return &Writer{auditPath: auditPath, historyPath: historyPath}
}

// Audit writes one TradeRecord as a JSON line. Every dispatch attempt
// lands here, successful or not.
func (w *Writer) Audit(rec types.TradeRecord) error {
	mu.Lock()
	defer mu.Unlock()

	rec.Time = time.Now().UTC().Format("2006-01-02 15:04:05")
	if dir := filepath.Dir(w.auditPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(w.auditPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, _ := json.Marshal(rec)
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// History appends one row to trade_history.csv, writing the header
// when the file is new.
func (w *Writer) History(symbol, decision string, volume, tpPips, slPips, confidence float64, result string) error {
	mu.Lock()
	defer mu.Unlock()

	writeHeader := false
	if _, err := os.Stat(w.historyPath); os.IsNotExist(err) {
		writeHeader = true
	}
	f, err := os.OpenFile(w.historyPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if writeHeader {
		if err := cw.Write([]string{"ts", "symbol", "decision", "volume", "tp_pips", "sl_pips", "confidence", "result"}); err != nil {
			return err
		}
	}
	row := []string{
		time.Now().UTC().Format(time.RFC3339),
		symbol,
		decision,
		strconv.FormatFloat(volume, 'f', -1, 64),
		strconv.FormatFloat(tpPips, 'f', 1, 64),
		strconv.FormatFloat(slPips, 'f', 1, 64),
		strconv.FormatFloat(confidence, 'f', 3, 64),
		result,
	}
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// CompressOlder gzips audit files older than the retention window.
func CompressOlder(dir string, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	return filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if filepath.Ext(p) != ".jsonl" {
			return nil
		}
		info, er := os.Stat(p)
		if er != nil {
			return nil
		}
		cutoff := time.Now().AddDate(0, 0, -retentionDays)
		if !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		if _, e2 := os.Stat(gz); e2 == nil {
			_ = os.Remove(p)
			return nil
		}
		in, e3 := os.Open(p)
		if e3 != nil {
			return nil
		}
		defer in.Close()
		out, e4 := os.OpenFile(gz, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if e4 != nil {
			return nil
		}
		gw := gzip.NewWriter(out)
		if _, e5 := io.Copy(gw, in); e5 == nil {
			_ = gw.Close()
			_ = out.Close()
			_ = os.Remove(p)
		} else {
			_ = gw.Close()
			_ = out.Close()
		}
		return nil
	})
}
