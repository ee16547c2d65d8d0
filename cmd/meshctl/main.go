// meshctl is a thin client for the meshhostd control API.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

func main() {
	host := flag.String("host", envOr("MESHCTL_HOST", "http://127.0.0.1:8080"), "meshhostd base URL")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	c := &client{base: *host, http: &http.Client{Timeout: 90 * time.Second}}
	var err error
	switch args[0] {
	case "inventory":
		err = c.get("/api/v1/inventory")
	case "auction":
		err = c.auction(args[1:])
	case "start":
		err = c.start(args[1:])
	case "stop":
		err = c.stop(args[1:])
	case "link":
		err = c.link(args[1:])
	case "labels":
		err = c.labels(args[1:])
	case "task":
		err = requireArg(args[1:], "task id", func(id string) error {
			return c.get("/api/v1/tasks/" + id)
		})
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: meshctl [-host URL] <command> [args]

commands:
  inventory                                  show the host inventory
  auction component|provider <ref> [k=v...]  bid with placement constraints
  start component|provider <ref> [link]      start a workload from an archive
  stop component <ref>                       stop a component
  stop provider <ref> <link> [contract]      stop a provider
  link <component> <provider> <link> <contract> [k=v...]
  labels [k=v...]                            replace the host labels
  task <id>                                  show an async task
`)
}

type client struct {
	base string
	http *http.Client
}

func (c *client) auction(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("auction needs a kind and a reference")
	}
	kind, ref := args[0], args[1]
	body := map[string]any{
		"reference":   ref,
		"constraints": parsePairs(args[2:]),
	}
	switch kind {
	case "component":
		return c.post("/api/v1/auctions/component", body)
	case "provider":
		body["link_name"] = "default"
		return c.post("/api/v1/auctions/provider", body)
	default:
		return fmt.Errorf("unknown auction kind %q", kind)
	}
}

func (c *client) start(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("start needs a kind and a reference")
	}
	kind, ref := args[0], args[1]
	switch kind {
	case "component":
		return c.post("/api/v1/components", map[string]any{"reference": ref})
	case "provider":
		link := "default"
		if len(args) > 2 {
			link = args[2]
		}
		return c.post("/api/v1/providers", map[string]any{"reference": ref, "link_name": link})
	default:
		return fmt.Errorf("unknown start kind %q", kind)
	}
}

func (c *client) stop(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("stop needs a kind and a reference")
	}
	kind, ref := args[0], args[1]
	switch kind {
	case "component":
		return c.delete("/api/v1/components/" + url.PathEscape(ref))
	case "provider":
		if len(args) < 3 {
			return fmt.Errorf("stop provider needs a link name")
		}
		path := "/api/v1/providers/" + url.PathEscape(ref) + "/" + url.PathEscape(args[2])
		if len(args) > 3 {
			path += "?contract_id=" + url.QueryEscape(args[3])
		}
		return c.delete(path)
	default:
		return fmt.Errorf("unknown stop kind %q", kind)
	}
}

func (c *client) link(args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("link needs component, provider, link name and contract")
	}
	return c.post("/api/v1/links", map[string]any{
		"component_id": args[0],
		"provider_id":  args[1],
		"link_name":    args[2],
		"contract_id":  args[3],
		"config":       parsePairs(args[4:]),
	})
}

func (c *client) labels(args []string) error {
	req, err := http.NewRequest(http.MethodPut, c.base+"/api/v1/labels",
		encodeBody(map[string]any{"labels": parsePairs(args)}))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *client) get(path string) error {
	req, err := http.NewRequest(http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req)
}

func (c *client) post(path string, body map[string]any) error {
	req, err := http.NewRequest(http.MethodPost, c.base+path, encodeBody(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *client) delete(path string) error {
	req, err := http.NewRequest(http.MethodDelete, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req)
}

func (c *client) do(req *http.Request) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	if len(bytes.TrimSpace(data)) > 0 {
		var pretty bytes.Buffer
		if json.Indent(&pretty, data, "", "  ") == nil {
			pretty.WriteByte('\n')
			_, _ = pretty.WriteTo(os.Stdout)
		} else {
			fmt.Println(string(data))
		}
	} else {
		fmt.Println(resp.Status)
	}
	return nil
}

func encodeBody(body map[string]any) io.Reader {
	data, _ := json.Marshal(body)
	return bytes.NewReader(data)
}

func parsePairs(args []string) map[string]string {
	out := map[string]string{}
	for _, a := range args {
		if k, v, ok := strings.Cut(a, "="); ok {
			out[k] = v
		}
	}
	return out
}

func requireArg(args []string, what string, fn func(string) error) error {
	if len(args) == 0 {
		return fmt.Errorf("missing %s", what)
	}
	return fn(args[0])
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
