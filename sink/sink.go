// Package sink forwards meter records to MQTT and ClickHouse.
package sink

import (
	"context"
	"strings"

	"github.com/bwesterb/go-wattsup"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// A Sink stores or publishes records.
type Sink interface {
	Write(ctx context.Context, r *wattsup.Record) error
	Close() error
}

// Multi writes every record to all of its sinks.
type Multi []Sink

func (m Multi) Write(ctx context.Context, r *wattsup.Record) error {
	var errs []string
	for _, s := range m {
		if err := s.Write(ctx, r); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) != 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open connects to every configured destination; nil configs are skipped.
func Open(ctx context.Context, mc *MQTTConfig, cc *ClickHouseConfig, log logrus.FieldLogger) (Multi, error) {
	var ret Multi
	if mc != nil {
		m, err := NewMQTT(*mc, log)
		if err != nil {
			return nil, err
		}
		ret = append(ret, m)
	}
	if cc != nil {
		c, err := NewClickHouse(ctx, *cc, log)
		if err != nil {
			ret.Close()
			return nil, err
		}
		ret = append(ret, c)
	}
	return ret, nil
}
