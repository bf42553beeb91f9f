package sink

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"go.ntppool.org/cdnopt/ranking"
)

// WriteArtifact replaces the file at path with one "<addr>,<ms>" line
// per entry. The previous contents are kept if writing fails.
func WriteArtifact(path string, entries []ranking.Entry) error {
	buf := bytes.Buffer{}
	for _, e := range entries {
		fmt.Fprintf(&buf, "%s,%d\n", e.Addr, e.Millis())
	}
	return replaceFile(path, buf.Bytes())
}

// ReadArtifact parses a file written by WriteArtifact.
func ReadArtifact(path string) ([]ranking.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries := []ranking.Entry{}

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if len(text) == 0 {
			continue
		}
		addrStr, msStr, ok := strings.Cut(text, ",")
		if !ok {
			return nil, fmt.Errorf("%s:%d: expected <addr>,<ms>", path, line)
		}
		addr, err := netip.ParseAddr(addrStr)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		ms, err := strconv.ParseInt(msStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		entries = append(entries, ranking.Entry{
			Addr:    addr,
			Latency: time.Duration(ms) * time.Millisecond,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return entries, nil
}

func replaceFile(path string, b []byte) error {
	tmpPath := path + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	defer func() {
		f.Close()
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	n, err := f.Write(b)
	if err == nil && n < len(b) {
		err = io.ErrShortWrite
	}
	if err1 := f.Close(); err == nil {
		err = err1
	}
	if err != nil {
		return err
	}

	err = os.Rename(tmpPath, path)
	return err
}
