package executor

import (
	"errors"
	"time"
)

var errNodeMissing = errors.New("executor: node not found in graph")

func errMsg(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func errString(err error) string { return errMsg(err) }

func timePtr(t time.Time) *time.Time { return &t }

func firstErr(errs map[string]error) error {
	for _, err := range errs {
		return err
	}
	return nil
}
