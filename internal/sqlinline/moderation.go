package sqlinline

const QInsertModerationJob = `--sql 43ae49f0-130a-4b22-932d-cac2c84d0851
insert into moderation_jobs (id, queue, payload, status, created_at, updated_at)
values ($1::uuid, $2, $3::jsonb, 'queued', now(), now());
`

// QClaimModerationJob hands the oldest queued job to exactly one worker.
const QClaimModerationJob = `--sql 6b66f697-7be3-4316-876f-6f9216e6563c
with next_job as (
    select id
    from moderation_jobs
    where queue = $1 and status = 'queued'
    order by created_at asc
    for update skip locked
    limit 1
),
updated as (
    update moderation_jobs
    set status = 'active', updated_at = now()
    where id in (select id from next_job)
    returning id::text, queue, payload, created_at, updated_at
)
select * from updated;
`

const QFinishModerationJob = `--sql da877e41-bcdb-42b1-a46c-d8b7ffe06868
update moderation_jobs
set status = $2, result = $3::jsonb, reason = nullif($4, ''), updated_at = now()
where id = $1::uuid and status in ('queued', 'active');
`

const QNotifyModerationJob = `--sql ffc53edd-617f-43b6-8166-eba9f3038d22
select pg_notify($1, $2);
`

const QSelectModerationJob = `--sql c332c90b-5ab7-4a13-aacf-f9d43cb92c0d
select id::text, queue, payload, status, result, coalesce(reason, ''), created_at, updated_at
from moderation_jobs
where id = $1::uuid
limit 1;
`

const QPruneModerationJobs = `--sql 6101f95f-2d38-44d8-acb0-f9e1a474ecd3
delete from moderation_jobs
where queue = $1 and status in ('completed', 'failed') and updated_at < $2;
`
