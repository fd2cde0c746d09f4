package rpcfacade

import (
	"fmt"
	"net/rpc"

	"github.com/flowgrind/flowgrind/daemon"
)

// Client is the controller-side stub for one daemon's RPC façade.
type Client struct {
	rpcClient *rpc.Client
	addr      string
}

// Dial connects to a daemon listening at addr (host:port).
func Dial(addr string) (*Client, error) {
	c, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("rpcfacade: dial %s: %w", addr, err)
	}
	return &Client{rpcClient: c, addr: addr}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.rpcClient.Close()
}

// Addr returns the daemon address this client was dialed against.
func (c *Client) Addr() string {
	return c.addr
}

func (c *Client) AddDestination(req daemon.AddDestinationRequest) (daemon.AddDestinationReply, error) {
	var reply daemon.AddDestinationReply
	err := c.rpcClient.Call("Flowgrind.AddDestination", req, &reply)
	return reply, err
}

func (c *Client) AddSource(req daemon.AddSourceRequest) (daemon.AddSourceReply, error) {
	var reply daemon.AddSourceReply
	err := c.rpcClient.Call("Flowgrind.AddSource", req, &reply)
	return reply, err
}

func (c *Client) StartFlows(req daemon.StartFlowsRequest) error {
	return c.rpcClient.Call("Flowgrind.StartFlows", req, &struct{}{})
}

func (c *Client) StopFlow(flowID int) error {
	return c.rpcClient.Call("Flowgrind.StopFlow", daemon.StopFlowRequest{FlowID: flowID}, &struct{}{})
}

func (c *Client) GetStatus() (daemon.GetStatusReply, error) {
	var reply daemon.GetStatusReply
	err := c.rpcClient.Call("Flowgrind.GetStatus", struct{}{}, &reply)
	return reply, err
}

func (c *Client) GetVersion() (daemon.GetVersionReply, error) {
	var reply daemon.GetVersionReply
	err := c.rpcClient.Call("Flowgrind.GetVersion", struct{}{}, &reply)
	return reply, err
}

// GetReports drains up to one page of pending reports.
func (c *Client) GetReports() (GetReportsReply, error) {
	var reply GetReportsReply
	err := c.rpcClient.Call("Flowgrind.GetReports", struct{}{}, &reply)
	return reply, err
}

// GetAllReports repeatedly calls GetReports until has_more is false,
// collecting everything currently pending. Used by the controller's
// polling loop between StartFlows and the test's configured end time.
func (c *Client) GetAllReports() ([]daemon.Report, error) {
	var all []daemon.Report
	for {
		page, err := c.GetReports()
		if err != nil {
			return all, err
		}
		all = append(all, page.Reports...)
		if !page.HasMore {
			return all, nil
		}
	}
}
