package web

import "html/template"

// The UI is three small pages: a form to start a flow, the flow log
// with the provider's authorization link, and the post-callback
// landing page.

var indexTemplate = template.Must(template.New("index").Parse(`<!doctype html>
<html>
<head><title>Solid authentication</title></head>
<body>
<h1>Sign in with Solid</h1>
<form action="/register" method="post">
  <label for="webid_or_provider">WebID or provider URL</label>
  <input type="text" id="webid_or_provider" name="webid_or_provider" size="60" value="{{.ProfileURL}}">
  <button type="submit">Authenticate</button>
</form>
</body>
</html>
`))

var registerTemplate = template.Must(template.New("register").Parse(`<!doctype html>
<html>
<head><title>Solid authentication</title></head>
<body>
<h1>Authentication request</h1>
<ul>
{{range .LogMessages}}  <li>{{.}}</li>
{{end}}</ul>
{{if .AuthURL}}<p><a href="{{.AuthURL}}">Continue to your provider to sign in</a></p>{{end}}
</body>
</html>
`))

var successTemplate = template.Must(template.New("success").Parse(`<!doctype html>
<html>
<head><title>Solid authentication</title></head>
<body>
<h1>Signed in</h1>
<p>Authentication is complete. This service can now act on your behalf.</p>
{{if .RedirectAfter}}<p><a href="{{.RedirectAfter}}">Return to the application</a></p>{{end}}
</body>
</html>
`))

var errorTemplate = template.Must(template.New("error").Parse(`<!doctype html>
<html>
<head><title>Solid authentication</title></head>
<body>
<h1>Something went wrong</h1>
<p>{{.Message}}</p>
<p><a href="/">Start again</a></p>
</body>
</html>
`))
