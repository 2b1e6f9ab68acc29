/*
Package clocksync aligns independently clocked audio and MIDI streams onto a
single global clock.

Concept

Every hardware device runs on its own crystal, so two devices which report
the same sample rate drift apart over time. The engine keeps a model of each
stream's local clock against the global clock and corrects the stream with
that model:

    Audio - resampled continuously by the estimated rate;
    MIDI - event timestamps mapped into global time and scheduled to a
    sample offset within an output block.

MIDI can be pushed as parsed events or as raw device bytes. Raw chunks are
split into messages during the pass.

Threading

There are three kinds of participants:

    Producers - driver callbacks which push blocks and events;
    Orchestration - a single context which runs processing passes;
    Consumers - application callbacks which poll results.

Producers and consumers never block, lock or allocate. They interact with
the engine through per-stream lock-free queues. Registry changes and
compensation settings are delivered to orchestration as mutations and
applied at the start of the next pass.

Orchestration is either started with Run or stepped manually with Process.

Drift model

For every pushed block or event the engine records a correlation pair: the
local time of the data and the global time of its arrival. The pairs feed a
sliding window least squares fit of

    global ≈ offset + rate·local

Until the fit has enough samples covering enough local time, streams are
passed through uncorrected and MIDI events are marked low confidence. Audio
output is kept on a timeline anchored at the first block, so the timing error
collected before convergence is recovered gradually afterwards.
*/
package clocksync
