package main

// Munin plugin for power readings provided by the wattsupd daemon.

import (
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/bwesterb/go-wattsup"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Fields plotted, with their munin names and labels.
var graphs = []struct {
	name, field, title, vlabel string
}{
	{"wattsup_watts", "watts", "Power usage", "Watt"},
	{"wattsup_volts", "volts", "Line voltage", "Volt"},
	{"wattsup_amps", "amps", "Current", "Ampere"},
}

func fieldName(label string) string {
	return strings.NewReplacer(" ", "_", "-", "_").Replace(label)
}

func fetch(url string) (*wattsup.Record, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, errors.Wrapf(err, "could not connect to wattsupd at %s", url)
	}
	defer resp.Body.Close()

	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, errors.New("no data, yet")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("wattsupd replied %s", resp.Status)
	}

	var r wattsup.Record
	if err := json.Unmarshal(body, &r); err != nil {
		return nil, errors.Wrap(err, "failed to parse reading")
	}
	return &r, nil
}

func printValues(w io.Writer, r *wattsup.Record) {
	for i, g := range graphs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "multigraph %s\n", g.name)
		if v, ok := r.Get(g.field); ok {
			fmt.Fprintf(w, "%s.value %s\n", fieldName(g.field),
				strconv.FormatFloat(v, 'f', -1, 64))
		} else {
			fmt.Fprintf(w, "%s.value U\n", fieldName(g.field))
		}
	}
}

func printConfig(w io.Writer) {
	for i, g := range graphs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "multigraph %s\n", g.name)
		fmt.Fprintf(w, "graph_title %s\n", g.title)
		fmt.Fprintf(w, "graph_vlabel %s\n", g.vlabel)
		fmt.Fprintln(w, "graph_category wattsup")
		fmt.Fprintf(w, "%s.label %s\n", fieldName(g.field), g.vlabel)
		fmt.Fprintf(w, "%s.type GAUGE\n", fieldName(g.field))
	}
}

func main() {
	url := os.Getenv("WATTSUPD_URL")
	if url == "" {
		url = "http://localhost:1121"
	}

	if len(os.Args) == 1 {
		r, err := fetch(url)
		if err != nil {
			logrus.Fatal(err)
		}
		printValues(os.Stdout, r)
		return
	}

	switch os.Args[1] {
	case "config":
		printConfig(os.Stdout)
		return
	case "autoconf":
		fmt.Println("yes")
		return
	}

	os.Exit(-1)
}
