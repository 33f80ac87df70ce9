package persist

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testAppName = "wallet-sync-test"

// TestLogger checks that the basic functions of the file logger work as
// designed.
func TestLogger(t *testing.T) {
	testdir := t.TempDir()

	logFilename := filepath.Join(testdir, "test.log")
	fl, err := NewFileLogger(testAppName, logFilename, false)
	if err != nil {
		t.Fatal(err)
	}

	// Write an example statement, and then close the logger.
	fl.Println("TEST: this should get written to the logfile")
	err = fl.Close()
	if err != nil {
		t.Fatal(err)
	}

	// Check that data was written to the log file. There should be three
	// lines, one for startup, the example line, and one to close the logger.
	expectedSubstring := []string{"STARTUP", "TEST", "SHUTDOWN", ""} // file ends with a newline
	validatelogfile(t, logFilename, expectedSubstring, 4)
}

// TestLoggerCritical prints a critical message from the logger.
func TestLoggerCritical(t *testing.T) {
	testdir := t.TempDir()

	logFilename := filepath.Join(testdir, "test.log")
	fl, err := NewFileLogger(testAppName, logFilename, false)
	if err != nil {
		t.Fatal(err)
	}

	// Write a catch for a panic that should trigger when logger.Critical is
	// called.
	defer func() {
		r := recover()
		if r == nil {
			t.Error("critical message was not thrown in a panic")
		}

		// Close the file logger to clean up the test.
		err = fl.Close()
		if err != nil {
			t.Fatal(err)
		}
	}()
	fl.Critical("a critical message")
}

func TestVerboseLogger(t *testing.T) {
	testdir := t.TempDir()

	logFilename := filepath.Join(testdir, "test.log")
	fl, err := NewFileLogger(testAppName, logFilename, true)
	if err != nil {
		t.Fatal(err)
	}

	// Write an example statement, and then close the logger.
	fl.Debugln("ROBTEST: this should get written to the logfile")
	err = fl.Close()
	if err != nil {
		t.Fatal(err)
	}

	// Check that data was written to the log file. There should be three
	// lines, one for startup, the example line, and one to close the logger.
	expectedSubstring := []string{"STARTUP", "ROBTEST", "SHUTDOWN", ""} // file ends with a newline
	validatelogfile(t, logFilename, expectedSubstring, 4)

	// Create a non-verbose logger and confirm Debugln is suppressed.
	logFilename = filepath.Join(testdir, "test.log2")
	fl, err = NewFileLogger(testAppName, logFilename, false)
	if err != nil {
		t.Fatal(err)
	}

	fl.Debugln("ROBTEST: this should not get written to the logfile")
	err = fl.Close()
	if err != nil {
		t.Fatal(err)
	}

	expectedSubstring = []string{"STARTUP", "SHUTDOWN", ""} // file ends with a newline
	validatelogfile(t, logFilename, expectedSubstring, 3)
}

func validatelogfile(t *testing.T, logFilename string, expectedSubstrings []string, numberOfLines int) {
	fileData, err := os.ReadFile(logFilename)
	if err != nil {
		t.Fatal(err)
	}
	fileLines := strings.Split(string(fileData), "\n")
	for i, line := range fileLines {
		if !strings.Contains(line, expectedSubstrings[i]) {
			t.Error("did not find the expected message in the logger")
		}
	}
	if len(fileLines) != numberOfLines {
		t.Error("logger did not create the correct number of lines:", len(fileLines))
	}
}
