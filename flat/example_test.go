package flat_test

import (
	"fmt"
	"log"

	"github.com/stevemurr/flatjson/document"
	"github.com/stevemurr/flatjson/flat"
)

func ExampleFlatten() {
	doc, err := document.ParseJSON([]byte(`{"test":{"tester.makeup":{"makeup":10},"madeup":20},"fakeup":30}`))
	if err != nil {
		log.Fatal(err)
	}
	entries, err := flat.Flatten(doc)
	if err != nil {
		log.Fatal(err)
	}
	for _, k := range entries.Keys() {
		v, _ := entries.Get(k)
		fmt.Println(k, v)
	}
	// Output:
	// test.tester\.makeup.makeup 10
	// test.madeup 20
	// fakeup 30
}

func ExampleUnflatten() {
	entries, err := document.ParseJSON([]byte(`{"user.name":"alpha_user","user.tags":["premium"],"v1\\.2":true}`))
	if err != nil {
		log.Fatal(err)
	}
	doc, err := flat.Unflatten(entries)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(doc)
	// Output:
	// {"user":{"name":"alpha_user","tags":["premium"]},"v1.2":true}
}
