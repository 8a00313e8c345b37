// Package shell implements the interactive command loop over a loaded
// corpus: find a pattern with a chosen number of workers, print a window of
// the corpus, and show help.
package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"

	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/matcher"
	"github.com/Adithya-Monish-Kumar-K/blocksearch/internal/searcher/executor"
)

const helpText = `commands:
  find <pattern> <workers>   search the corpus using <workers> parallel blocks
  slice <position> <count>   print <count> bytes starting at 1-based <position>
  strategy <naive|kmp>       change the match strategy
  help                       show this text
  quit                       leave the shell`

// Engine is the part of the executor the shell drives.
type Engine interface {
	Search(ctx context.Context, pattern []byte, workers int, strategy matcher.Strategy) (*executor.SearchResult, error)
	Slice(position, count int) ([]byte, error)
}

type Options struct {
	Strategy matcher.Strategy
	// Prompt prints "> " before each command. Off when input is piped.
	Prompt bool
	// Color enables ANSI styling of headings and errors.
	Color bool
}

// DetectTerminal sets Prompt when in is a terminal and Color when out is.
func DetectTerminal(in, out *os.File, strategy matcher.Strategy) Options {
	return Options{
		Strategy: strategy,
		Prompt:   isatty.IsTerminal(in.Fd()) || isatty.IsCygwinTerminal(in.Fd()),
		Color:    isatty.IsTerminal(out.Fd()),
	}
}

// Shell reads whitespace separated tokens, so a command and its arguments
// may span several lines.
type Shell struct {
	engine   Engine
	tokens   *bufio.Scanner
	out      *termenv.Output
	strategy matcher.Strategy
	prompt   bool
	logger   *slog.Logger
}

func New(engine Engine, in io.Reader, out io.Writer, opts Options) *Shell {
	profile := termenv.Ascii
	if opts.Color {
		profile = termenv.ANSI
	}
	tokens := bufio.NewScanner(in)
	tokens.Buffer(make([]byte, 64*1024), 1<<20)
	tokens.Split(bufio.ScanWords)
	if opts.Strategy == "" {
		opts.Strategy = matcher.StrategyKMP
	}
	return &Shell{
		engine:   engine,
		tokens:   tokens,
		out:      termenv.NewOutput(out, termenv.WithProfile(profile)),
		strategy: opts.Strategy,
		prompt:   opts.Prompt,
		logger:   slog.Default().With("component", "shell"),
	}
}

var errQuit = errors.New("quit")

// Run processes commands until quit, end of input or ctx cancellation.
func (s *Shell) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if s.prompt {
			fmt.Fprint(s.out, s.style("> ", "8"))
		}
		cmd, ok := s.next()
		if !ok {
			return s.tokens.Err()
		}
		err := s.dispatch(ctx, strings.ToLower(cmd))
		switch {
		case errors.Is(err, errQuit):
			return nil
		case errors.Is(err, io.EOF):
			return s.tokens.Err()
		case err != nil:
			s.printError(err)
		}
	}
}

func (s *Shell) dispatch(ctx context.Context, cmd string) error {
	switch cmd {
	case "find":
		return s.find(ctx)
	case "slice":
		return s.slice()
	case "strategy":
		return s.setStrategy()
	case "help", "?":
		fmt.Fprintln(s.out, helpText)
		return nil
	case "quit", "exit", "q":
		return errQuit
	default:
		fmt.Fprintf(s.out, "unknown command %q\n%s\n", cmd, helpText)
		return nil
	}
}

func (s *Shell) find(ctx context.Context) error {
	pattern, ok := s.next()
	if !ok {
		return io.EOF
	}
	workers, err := s.nextInt("workers")
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := s.engine.Search(ctx, []byte(pattern), workers, s.strategy)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Running on %d workers (%s)\n", workers, s.strategy)
	if result.Degenerate {
		fmt.Fprintln(s.out, s.style("warning: blocks are shorter than the pattern", "3"))
	}
	fmt.Fprintf(s.out, "Duration of %q is %.8fs\n", "Processing", time.Since(start).Seconds())
	fmt.Fprintln(s.out, s.style(fmt.Sprintf("--Found %d entries--", result.TotalMatches()), "2"))
	if result.TotalMatches() == 0 {
		return nil
	}

	fmt.Fprint(s.out, "Would you like to see results? [y/N/<count>] ")
	answer, ok := s.next()
	if !ok {
		return io.EOF
	}
	k := 0
	switch {
	case answer == "y" || answer == "Y":
		k = -1
	default:
		if n, err := strconv.Atoi(answer); err == nil && n > 0 {
			k = n
		}
	}
	if k == 0 {
		return nil
	}
	w := bufio.NewWriter(s.out)
	for _, p := range result.Positions(k) {
		w.WriteString(strconv.Itoa(p))
		w.WriteByte('\n')
	}
	return w.Flush()
}

func (s *Shell) slice() error {
	position, err := s.nextInt("position")
	if err != nil {
		return err
	}
	count, err := s.nextInt("count")
	if err != nil {
		return err
	}
	data, err := s.engine.Slice(position, count)
	if err != nil {
		return err
	}
	s.out.Write(data)
	fmt.Fprintln(s.out)
	return nil
}

func (s *Shell) setStrategy() error {
	name, ok := s.next()
	if !ok {
		return io.EOF
	}
	strategy, err := matcher.ParseStrategy(name)
	if err != nil {
		return err
	}
	s.strategy = strategy
	fmt.Fprintf(s.out, "strategy set to %s\n", strategy)
	return nil
}

func (s *Shell) next() (string, bool) {
	if !s.tokens.Scan() {
		return "", false
	}
	return s.tokens.Text(), true
}

func (s *Shell) nextInt(name string) (int, error) {
	tok, ok := s.next()
	if !ok {
		return 0, io.EOF
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, tok)
	}
	return n, nil
}

func (s *Shell) printError(err error) {
	s.logger.Debug("command failed", "error", err)
	fmt.Fprintln(s.out, s.style("error: "+err.Error(), "1"))
}

func (s *Shell) style(text, color string) string {
	return s.out.String(text).Foreground(s.out.Color(color)).String()
}
