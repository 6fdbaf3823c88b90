package tasks

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/d3ud3u-ntp2/spherize/appconfig"
	"github.com/d3ud3u-ntp2/spherize/jobqueue"
)

// hookTask runs the configured shell command after a render, handing
// it the output path. Stdout and stderr stream into the job ledger.
//
// Arguments:
//
//	command=<template>  overrides the configured hook; %s expands to
//	                    the job input
func hookTask(j *jobqueue.Job, q *jobqueue.Queue, mu *sync.Mutex) error {
	ctx := j.Ctx
	args := parseArgs(j.Arguments)
	cfg := appconfig.Get()

	fail := func(err error) error {
		q.PushJobStdout(j.ID, "hook: "+err.Error())
		_ = q.ErrorJob(j.ID)
		return err
	}

	cmdTemplate := argString(args, "command", cfg.HookCommand)
	if cmdTemplate == "" {
		q.PushJobStdout(j.ID, "hook: no command configured, skipping")
		q.CompleteJob(j.ID)
		return nil
	}

	line := hookCommandLine(cmdTemplate, strings.TrimSpace(j.Input))
	shell, flag := systemShell()
	cmd := exec.CommandContext(ctx, shell, flag, line)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fail(fmt.Errorf("failed to get stdout pipe: %w", err))
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fail(fmt.Errorf("failed to get stderr pipe: %w", err))
	}

	q.PushJobStdout(j.ID, "hook: "+line)
	if err := cmd.Start(); err != nil {
		return fail(fmt.Errorf("failed to start hook command: %w", err))
	}

	doneReading := make(chan struct{})
	totalReaders := 2
	doneCount := 0

	scanAndPush := func(pipe io.ReadCloser) {
		s := bufio.NewScanner(pipe)
		for s.Scan() {
			_ = q.PushJobStdout(j.ID, s.Text())
		}
		if err := s.Err(); err != nil && !errors.Is(err, io.EOF) {
			_ = q.PushJobStdout(j.ID, fmt.Sprintf("hook: error reading pipe: %s", err))
		}
		mu.Lock()
		doneCount++
		if doneCount == totalReaders {
			close(doneReading)
		}
		mu.Unlock()
	}

	go scanAndPush(stdoutPipe)
	go scanAndPush(stderrPipe)

	err = cmd.Wait()
	<-doneReading

	select {
	case <-ctx.Done():
		q.PushJobStdout(j.ID, "hook: task canceled")
		_ = q.CancelJob(j.ID)
		return ctx.Err()
	default:
	}

	if err != nil {
		return fail(fmt.Errorf("hook command failed: %w", err))
	}
	q.PushJobStdout(j.ID, "hook: done")
	q.CompleteJob(j.ID)
	return nil
}

// hookCommandLine expands %s in the template to the input path, or
// appends the input when the template has no placeholder.
func hookCommandLine(template, input string) string {
	if input == "" {
		return template
	}
	if strings.Contains(template, "%s") {
		return strings.ReplaceAll(template, "%s", input)
	}
	return template + " " + input
}

func systemShell() (shell, flag string) {
	if runtime.GOOS == "windows" {
		return "cmd", "/C"
	}
	return "sh", "-c"
}
