package cron

import "testing"

func TestRegistryDropsNilJobs(t *testing.T) {
	registry := NewRegistry(nil, &testJob{name: "a"}, nil, &testJob{name: "b"})
	jobs := registry.Jobs()
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].Name() != "a" || jobs[1].Name() != "b" {
		t.Fatalf("unexpected order: %s, %s", jobs[0].Name(), jobs[1].Name())
	}
}

func TestRegistryJobsReturnsCopy(t *testing.T) {
	registry := NewRegistry(&testJob{name: "a"})
	jobs := registry.Jobs()
	jobs[0] = &testJob{name: "replaced"}
	if registry.Jobs()[0].Name() != "a" {
		t.Fatal("mutating the returned slice must not affect the registry")
	}
}
