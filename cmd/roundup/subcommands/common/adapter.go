package common

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/youta-t/flarc"

	roundup "github.com/roundup-project/roundup/pkg"
	rconf "github.com/roundup-project/roundup/pkg/configs/roundup"
)

type TaskWithCommonFlag[T any] func(
	ctx context.Context,
	logger *log.Logger,
	commonFlag CommonFlags,
	cl flarc.Commandline[T],
	params []any,
) error

func NewTaskWithCommonFlag[T any](task TaskWithCommonFlag[T]) flarc.Task[T] {
	return func(ctx context.Context, cl flarc.Commandline[T], pos []any) error {
		var commonFlag CommonFlags
		found := false
		newpos := make([]any, 0, len(pos))
		for _, p := range pos {
			switch v := p.(type) {
			case CommonFlags:
				found = true
				commonFlag = v
			default:
				newpos = append(newpos, p)
			}
		}
		if !found {
			return errors.New("programming error: common flags not found")
		}

		logger := log.New(cl.Stderr(), "", log.LstdFlags)
		logger.SetPrefix(fmt.Sprintf("[%s] ", cl.Fullname()))

		return task(
			ctx,
			logger,
			commonFlag,
			cl,
			newpos,
		)
	}
}

// Task is a subcommand body working on components described by the config.
type Task[T any] func(
	ctx context.Context,
	logger *log.Logger,
	r roundup.Roundup,
	cl flarc.Commandline[T],
	params []any,
) error

// NewTask loads the config given by common flags and attaches to components for the task.
//
// Components are closed after the task.
func NewTask[T any](task Task[T], options ...roundup.AttachOption) flarc.Task[T] {
	return NewTaskWithCommonFlag(func(
		ctx context.Context,
		logger *log.Logger,
		commonFlag CommonFlags,
		cl flarc.Commandline[T],
		params []any,
	) error {
		r, err := Attach(ctx, logger, commonFlag, options...)
		if err != nil {
			return err
		}
		defer func() {
			if err := r.Close(); err != nil {
				logger.Printf("failed to close the store: %v", err)
			}
		}()
		return task(ctx, logger, r, cl, params)
	})
}

// Attach loads the config and attaches to components.
func Attach(ctx context.Context, logger *log.Logger, commonFlag CommonFlags, options ...roundup.AttachOption) (roundup.Roundup, error) {
	conf, err := rconf.LoadConfig(commonFlag.Config)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load config", err)
	}
	options = append([]roundup.AttachOption{roundup.WithLogger(logger)}, options...)
	r, err := roundup.Attach(ctx, conf, options...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open components in config (%s)", err, commonFlag.Config)
	}
	return r, nil
}
