// Package logstore provides durable per-session storage for agent
// diagnostics: an in-memory ring buffer with NDJSON file persistence and
// gzip-compressed rotation.
package logstore

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	gzip "github.com/klauspost/compress/gzip"
)

const (
	maxLines     = 10000
	maxBytes     = 5 * 1024 * 1024  // 5MB in-memory ring buffer
	maxFileBytes = 10 * 1024 * 1024 // 10MB per log file before rotation

	fileExt    = ".ndjson"
	rotatedExt = ".1.ndjson.gz"
)

// Log streams identify where an entry originated.
const (
	StreamStderr = "stderr" // Agent standard error
	StreamSystem = "system" // Supervisor lifecycle events
)

// Entry is a single diagnostic line of an agent session.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	Stream    string    `json:"stream"`
	Line      string    `json:"line"`
	Session   string    `json:"session"`
}

func (e Entry) size() int {
	return len(e.Line) + len(e.Stream) + 100 // approximate overhead
}

// Store manages diagnostic logs for all sessions.
type Store struct {
	mu      sync.RWMutex
	logs    map[string]*Log
	logsDir string
}

// NewStore creates a new log store, creating logsDir if needed.
func NewStore(logsDir string) (*Store, error) {
	if err := os.MkdirAll(logsDir, 0700); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	return &Store{
		logs:    make(map[string]*Log),
		logsDir: logsDir,
	}, nil
}

// GetOrCreate returns the Log for the given session, creating it if needed.
func (s *Store) GetOrCreate(session string) *Log {
	s.mu.RLock()
	l, ok := s.logs[session]
	s.mu.RUnlock()
	if ok {
		return l
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double-check after acquiring write lock
	if l, ok := s.logs[session]; ok {
		return l
	}

	l = newLog(session, filepath.Join(s.logsDir, session+fileExt), maxFileBytes)
	s.logs[session] = l
	return l
}

// Remove closes the log for a session if it is open and removes its files
// from disk.
func (s *Store) Remove(session string) {
	s.mu.Lock()
	l, ok := s.logs[session]
	if ok {
		delete(s.logs, session)
	}
	s.mu.Unlock()

	if ok {
		l.Close()
	}
	base := filepath.Join(s.logsDir, session)
	os.Remove(base + fileExt)
	os.Remove(base + rotatedExt)
}

// Close closes every open log.
func (s *Store) Close() {
	s.mu.Lock()
	logs := s.logs
	s.logs = make(map[string]*Log)
	s.mu.Unlock()

	for _, l := range logs {
		l.Close()
	}
}

// Sessions lists the sessions that have a log file on disk, oldest first.
func (s *Store) Sessions() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.logsDir, "*"+fileExt))
	if err != nil {
		return nil, err
	}
	type found struct {
		name string
		mod  time.Time
	}
	var sessions []found
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		sessions = append(sessions, found{
			name: strings.TrimSuffix(filepath.Base(m), fileExt),
			mod:  info.ModTime(),
		})
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].mod.Before(sessions[j].mod) })

	names := make([]string, len(sessions))
	for i, f := range sessions {
		names[i] = f.name
	}
	return names, nil
}

// ReadFile returns the persisted entries of a session, including the
// rotated file, limited to the last tail entries. If tail <= 0, all entries
// are returned.
func (s *Store) ReadFile(session string, tail int) ([]Entry, error) {
	base := filepath.Join(s.logsDir, session)

	var entries []Entry
	if f, err := os.Open(base + rotatedExt); err == nil {
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open rotated log: %w", err)
		}
		entries, err = decodeEntries(zr, entries)
		zr.Close()
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read rotated log: %w", err)
		}
	}

	f, err := os.Open(base + fileExt)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && len(entries) > 0 {
			return tailEntries(entries, tail), nil
		}
		return nil, err
	}
	defer f.Close()
	if entries, err = decodeEntries(f, entries); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return tailEntries(entries, tail), nil
}

func decodeEntries(r io.Reader, entries []Entry) ([]Entry, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			// A torn final line after a crash.
			continue
		}
		entries = append(entries, e)
	}
	return entries, sc.Err()
}

func tailEntries(entries []Entry, tail int) []Entry {
	if tail > 0 && len(entries) > tail {
		return entries[len(entries)-tail:]
	}
	return entries
}

// Log is a per-session ring buffer with disk persistence and live
// subscriptions. It is safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	session string

	// Ring buffer
	entries    []Entry
	head       int
	count      int
	totalBytes int

	// Subscribers
	subs []chan Entry

	// File persistence
	filePath     string
	file         *os.File
	fileBytes    int64
	maxFileBytes int64
}

func newLog(session, filePath string, maxFile int64) *Log {
	l := &Log{
		session:      session,
		entries:      make([]Entry, maxLines),
		filePath:     filePath,
		maxFileBytes: maxFile,
	}

	// Open or create log file
	f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err == nil {
		l.file = f
		info, _ := f.Stat()
		if info != nil {
			l.fileBytes = info.Size()
		}
	}

	return l
}

// Session returns the session the log belongs to.
func (l *Log) Session() string { return l.session }

// Append adds an entry to the ring buffer, persists it, and notifies
// subscribers.
func (l *Log) Append(stream, line string) {
	entry := Entry{
		Timestamp: time.Now(),
		Stream:    stream,
		Line:      line,
		Session:   l.session,
	}
	entrySize := entry.size()

	l.mu.Lock()

	// Evict entries if over byte cap
	for l.count > 0 && l.totalBytes+entrySize > maxBytes {
		l.evictOldest()
	}

	// Evict if at max lines
	if l.count >= maxLines {
		l.evictOldest()
	}

	idx := (l.head + l.count) % maxLines
	l.entries[idx] = entry
	l.count++
	l.totalBytes += entrySize

	if l.file != nil {
		data, err := json.Marshal(entry)
		if err == nil {
			data = append(data, '\n')
			n, err := l.file.Write(data)
			if err == nil {
				l.fileBytes += int64(n)
				if l.fileBytes > l.maxFileBytes {
					l.rotate()
				}
			}
		}
	}

	// Under the lock: Close and unsubscribe close these channels. Sends
	// never block.
	for _, ch := range l.subs {
		select {
		case ch <- entry:
		default:
		}
	}
	l.mu.Unlock()
}

func (l *Log) evictOldest() {
	l.totalBytes -= l.entries[l.head].size()
	l.entries[l.head] = Entry{}
	l.head = (l.head + 1) % maxLines
	l.count--
}

// rotate compresses the current file over the previous rotation and starts
// a fresh one. Only one rotated generation is kept.
func (l *Log) rotate() {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	if err := compressFile(l.filePath, strings.TrimSuffix(l.filePath, fileExt)+rotatedExt); err == nil {
		os.Remove(l.filePath)
	}
	f, err := os.OpenFile(l.filePath, os.O_CREATE|os.O_TRUNC|os.O_APPEND|os.O_WRONLY, 0600)
	if err == nil {
		l.file = f
		l.fileBytes = 0
	}
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	zw := gzip.NewWriter(out)
	if _, err := io.Copy(zw, in); err != nil {
		zw.Close()
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := zw.Close(); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

// Read returns buffered entries filtered by since time, limited to the last
// tail entries. If tail <= 0, all matching entries are returned.
func (l *Log) Read(since time.Time, tail int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var result []Entry
	for i := 0; i < l.count; i++ {
		e := l.entries[(l.head+i)%maxLines]
		if !since.IsZero() && !e.Timestamp.After(since) {
			continue
		}
		result = append(result, e)
	}
	return tailEntries(result, tail)
}

// Subscribe returns a channel for live entries, the entries already
// buffered, and an unsubscribe function. Slow subscribers miss entries
// rather than block Append.
func (l *Log) Subscribe() (ch chan Entry, existing []Entry, unsub func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch = make(chan Entry, 100)
	l.subs = append(l.subs, ch)

	existing = make([]Entry, 0, l.count)
	for i := 0; i < l.count; i++ {
		existing = append(existing, l.entries[(l.head+i)%maxLines])
	}

	var once sync.Once
	unsub = func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			for i, s := range l.subs {
				if s == ch {
					l.subs = append(l.subs[:i], l.subs[i+1:]...)
					close(ch)
					break
				}
			}
		})
	}

	return ch, existing, unsub
}

// Close closes the file handle and all subscriber channels.
func (l *Log) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	for _, ch := range l.subs {
		close(ch)
	}
	l.subs = nil
}
