package app

import "testing"

func TestParseVectorProvider(t *testing.T) {
	cases := []struct {
		raw    string
		want   VectorProvider
		wantOK bool
	}{
		{raw: "", want: VectorProviderMemory, wantOK: true},
		{raw: "memory", want: VectorProviderMemory, wantOK: true},
		{raw: " MEMORY ", want: VectorProviderMemory, wantOK: true},
		{raw: "qdrant", want: VectorProviderQdrant, wantOK: true},
		{raw: "Qdrant", want: VectorProviderQdrant, wantOK: true},
		{raw: "pinecone", wantOK: false},
		{raw: "faiss", wantOK: false},
	}
	for _, tc := range cases {
		got, ok := ParseVectorProvider(tc.raw)
		if ok != tc.wantOK {
			t.Fatalf("ParseVectorProvider(%q) ok: want=%v got=%v", tc.raw, tc.wantOK, ok)
		}
		if ok && got != tc.want {
			t.Fatalf("ParseVectorProvider(%q): want=%q got=%q", tc.raw, tc.want, got)
		}
	}
}
