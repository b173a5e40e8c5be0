package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Request names one build. Options are handed to the compiler and, with
// Extra, folded into the key.
type Request struct {
	ModelPath string
	ClassName string
	Kind      BuildKind
	Options   []string
	Extra     string
}

func (r Request) keyExtra() string { return BuildExtra(r.Extra, r.Options) }

// Artifact is a published cache entry.
type Artifact struct {
	Key  Key
	Path string
	Dir  string
	Hit  bool
}

type buildInfo struct {
	Timestamp   time.Time `json:"timestamp_utc"`
	Key         Key       `json:"key"`
	ModelPath   string    `json:"model_path"`
	ClassName   string    `json:"class_name"`
	Kind        BuildKind `json:"kind"`
	Options     []string  `json:"options,omitempty"`
	Extra       string    `json:"extra,omitempty"`
	Artifact    string    `json:"artifact"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
	DurationSec float64   `json:"duration_sec"`
}

// Cache maps artifact keys to build outputs under Dir:
//
//	{Dir}/fmu/{key}/
//	  {Class_Name}.fmu
//	  logs/build.log
//	  logs/build_info.json
//	  work/            compiler intermediates
//	{Dir}/failed/{key}/logs/...   diagnostics of the last failed build
//
// An entry whose artifact file exists is trusted without re-validation.
// Builds happen in a staging directory next to the entry and are published
// with a single rename, so a partial build is never visible at the final
// path, even to another process sharing Dir.
type Cache struct {
	Dir      string
	Compiler Compiler
	Logger   *slog.Logger

	now           func() time.Time
	beforePublish func()
}

func New(dir string, compiler Compiler, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{Dir: dir, Compiler: compiler, Logger: logger, now: time.Now}
}

// ArtifactName derives a filesystem-safe base name from a class name.
func ArtifactName(className string) string {
	return strings.ReplaceAll(className, ".", "_")
}

func (c *Cache) entryDir(key Key) string {
	return filepath.Join(c.Dir, "fmu", string(key))
}

// Lookup reports the published artifact for key, if present.
func (c *Cache) Lookup(key Key, className string) (*Artifact, bool) {
	dir := c.entryDir(key)
	path := filepath.Join(dir, ArtifactName(className)+".fmu")
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return nil, false
	}
	return &Artifact{Key: key, Path: path, Dir: dir, Hit: true}, true
}

// Build returns the cached artifact for req, compiling it on a miss.
func (c *Cache) Build(ctx context.Context, req Request) (*Artifact, error) {
	if req.Kind == "" {
		req.Kind = KindCoSimulation
	}
	modelPath, err := filepath.Abs(req.ModelPath)
	if err != nil {
		return nil, err
	}
	req.ModelPath = modelPath

	key, err := KeyForModel(req.ModelPath, req.ClassName, req.Kind, req.keyExtra())
	if err != nil {
		return nil, fmt.Errorf("computing artifact key: %w", err)
	}

	if a, ok := c.Lookup(key, req.ClassName); ok {
		c.Logger.Info("artifact cache hit", "class", req.ClassName, "key", key, "path", a.Path)
		return a, nil
	}
	if c.Compiler == nil {
		return nil, &BuildError{Key: key, ClassName: req.ClassName, Wrapped: errors.New("no compiler configured")}
	}

	root := filepath.Join(c.Dir, "fmu")
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	staging, err := os.MkdirTemp(root, ".tmp-"+string(key)+"-")
	if err != nil {
		return nil, fmt.Errorf("creating staging directory: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(staging)
		}
	}()

	workDir := filepath.Join(staging, "work")
	logsDir := filepath.Join(staging, "logs")
	for _, d := range []string{workDir, logsDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, fmt.Errorf("creating staging directory: %w", err)
		}
	}

	name := ArtifactName(req.ClassName)
	started := c.now()
	info := buildInfo{
		Timestamp: started.UTC(),
		Key:       key,
		ModelPath: req.ModelPath,
		ClassName: req.ClassName,
		Kind:      req.Kind,
		Options:   req.Options,
		Extra:     req.Extra,
		Artifact:  name + ".fmu",
		Status:    "building",
	}
	buildLog := filepath.Join(logsDir, "build.log")
	appendLog(buildLog, "[%s] START build\nmodel=%s\nclass=%s\nkind=%s\nkey=%s\n",
		started.UTC().Format(time.RFC3339), req.ModelPath, req.ClassName, req.Kind, key)

	c.Logger.Info("building artifact", "class", req.ClassName, "kind", req.Kind, "model", req.ModelPath, "key", key)
	res, compileErr := c.Compiler.Compile(ctx, CompileRequest{
		ModelPath:  req.ModelPath,
		ClassName:  req.ClassName,
		Kind:       req.Kind,
		Options:    req.Options,
		WorkDir:    workDir,
		OutputName: name,
	})
	diagnostics := ""
	if res != nil {
		diagnostics = res.Diagnostics
	}
	info.DurationSec = c.now().Sub(started).Seconds()

	if compileErr == nil {
		compileErr = c.adopt(res, filepath.Join(staging, name+".fmu"))
	}
	if compileErr != nil {
		info.Status = "failed"
		info.Error = compileErr.Error()
		appendLog(buildLog, "\n[%s] FAILURE\nerror=%v\n\ndiagnostics:\n%s\n",
			c.now().UTC().Format(time.RFC3339), compileErr, diagnostics)
		writeJSON(filepath.Join(logsDir, "build_info.json"), info)
		logPath := c.keepFailureLogs(key, logsDir)
		c.Logger.Error("artifact build failed", "class", req.ClassName, "key", key, "log", logPath, "err", compileErr)
		return nil, &BuildError{
			Key:         key,
			ClassName:   req.ClassName,
			LogPath:     logPath,
			Diagnostics: diagnostics,
			Wrapped:     compileErr,
		}
	}

	info.Status = "ok"
	appendLog(buildLog, "\n[%s] SUCCESS\nartifact=%s\n\ndiagnostics:\n%s\n",
		c.now().UTC().Format(time.RFC3339), name+".fmu", diagnostics)
	writeJSON(filepath.Join(logsDir, "build_info.json"), info)

	a, err := c.publish(staging, key, req.ClassName)
	if err != nil {
		return nil, err
	}
	committed = !a.Hit
	if a.Hit {
		c.Logger.Info("artifact published concurrently, discarding local build", "key", key)
		return a, nil
	}
	c.Logger.Info("artifact created", "class", req.ClassName, "path", a.Path)
	return a, nil
}

// publish renames the staging directory onto the entry path. An entry
// published by someone else first wins and is returned with Hit set; the
// entry directory is never removed while it may hold an artifact.
func (c *Cache) publish(staging string, key Key, className string) (*Artifact, error) {
	if a, ok := c.Lookup(key, className); ok {
		return a, nil
	}
	if c.beforePublish != nil {
		c.beforePublish()
	}
	final := c.entryDir(key)
	err := os.Rename(staging, final)
	if err == nil {
		return &Artifact{Key: key, Path: filepath.Join(final, ArtifactName(className)+".fmu"), Dir: final}, nil
	}
	if a, ok := c.Lookup(key, className); ok {
		return a, nil
	}

	// A directory without an artifact is not an entry. Move it aside
	// atomically and inspect the moved copy, so an entry published in the
	// meantime is put back instead of deleted.
	stale := final + ".stale-" + filepath.Base(staging)
	if os.Rename(final, stale) != nil {
		return nil, fmt.Errorf("publishing artifact %s: %w", key, err)
	}
	if _, serr := os.Stat(filepath.Join(stale, ArtifactName(className)+".fmu")); serr == nil {
		if os.Rename(stale, final) == nil {
			if a, ok := c.Lookup(key, className); ok {
				return a, nil
			}
		}
	}
	_ = os.RemoveAll(stale)
	if err := os.Rename(staging, final); err != nil {
		if a, ok := c.Lookup(key, className); ok {
			return a, nil
		}
		return nil, fmt.Errorf("publishing artifact %s: %w", key, err)
	}
	return &Artifact{Key: key, Path: filepath.Join(final, ArtifactName(className)+".fmu"), Dir: final}, nil
}

// adopt moves the compiler output to dst inside the staging directory.
func (c *Cache) adopt(res *CompileResult, dst string) error {
	if res == nil || res.ArtifactPath == "" {
		return errors.New("compiler reported no artifact")
	}
	if err := os.Rename(res.ArtifactPath, dst); err == nil {
		return nil
	}
	return copyFile(res.ArtifactPath, dst)
}

// keepFailureLogs copies the staging logs to {Dir}/failed/{key} so they
// survive the staging cleanup without touching the entry path.
func (c *Cache) keepFailureLogs(key Key, logsDir string) string {
	dst := filepath.Join(c.Dir, "failed", string(key), "logs")
	if err := os.MkdirAll(dst, 0755); err != nil {
		return ""
	}
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		_ = copyFile(filepath.Join(logsDir, e.Name()), filepath.Join(dst, e.Name()))
	}
	return filepath.Join(dst, "build.log")
}

func appendLog(path string, format string, args ...any) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, format, args...)
}

func writeJSON(path string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(path, data, 0644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
