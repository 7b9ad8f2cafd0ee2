// Package fakes provides test doubles for sanbridge's external collaborators.
//
// This package contains fake implementations of the transport, credential
// vault and cloud secret clients so that session managers, array protocols
// and credential sources can be unit tested without a real array or cloud
// account. Fakes are manually implemented (not generated) to provide precise
// control over test behavior.
//
// Usage:
//
//	ft := fakes.NewFakeTransport(func(req *session.Request) (*session.Response, error) {
//	    if req.Path == "/ConfigurationManager/v1/objects/storages" {
//	        return fakes.JSONResponse(200, discovery), nil
//	    }
//	    return fakes.TextResponse(404, ""), nil
//	})
//	mgr, _ := session.New(vsp.New(nil), session.Config{
//	    Dial:  ft.Dialer(),
//	    Vault: fakes.NewFakeVault(),
//	})
package fakes
