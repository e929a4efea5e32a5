package client

// Get, Post, Put, Patch, Delete, Head, and OptionsCall are the one-shot
// synchronous terminators spec §6 names
// "get/post/put/patch/del/head/options(url[, callback_or_body])"; each is
// shorthand for Request(url) with an optional body.

func (c *Client) Get(url string) (*Response, error) {
	return c.Request(url).Get()
}

func (c *Client) Post(url string, body []byte, contentType string) (*Response, error) {
	return c.Request(url).Body(body, contentType).Post()
}

func (c *Client) Put(url string, body []byte, contentType string) (*Response, error) {
	return c.Request(url).Body(body, contentType).Put()
}

func (c *Client) Patch(url string, body []byte, contentType string) (*Response, error) {
	return c.Request(url).Body(body, contentType).Patch()
}

func (c *Client) Delete(url string) (*Response, error) {
	return c.Request(url).Delete()
}

func (c *Client) Head(url string) (*Response, error) {
	return c.Request(url).Head()
}

func (c *Client) OptionsCall(url string) (*Response, error) {
	return c.Request(url).OptionsReq()
}
