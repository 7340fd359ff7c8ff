package provider

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/sfomuseum/go-sfomuseum-boundaries/fetch"
)

func intParam(q url.Values, k string, default_v int) (int, error) {

	if !q.Has(k) {
		return default_v, nil
	}

	v, err := strconv.Atoi(q.Get(k))

	if err != nil {
		return 0, fmt.Errorf("Invalid ?%s= parameter, %w", k, err)
	}

	return v, nil
}

// applyFetchParams applies the optional timeout, max-attempts and retry-delay query
// parameters to each of opts.
func applyFetchParams(q url.Values, opts ...*fetch.Options) error {

	max_attempts, err := intParam(q, "max-attempts", -1)

	if err != nil {
		return err
	}

	for _, k := range []string{"timeout", "retry-delay"} {

		if !q.Has(k) {
			continue
		}

		d, err := time.ParseDuration(q.Get(k))

		if err != nil {
			return fmt.Errorf("Invalid ?%s= parameter, %w", k, err)
		}

		for _, o := range opts {

			switch k {
			case "timeout":
				o.Timeout = d
			case "retry-delay":
				o.RetryDelay = d
			}
		}
	}

	if max_attempts > 0 {

		for _, o := range opts {
			o.MaxAttempts = max_attempts
		}
	}

	return nil
}
